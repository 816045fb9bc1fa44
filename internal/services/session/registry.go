package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mcoot/playerhub/internal/dependencies/clock"
	"github.com/mcoot/playerhub/internal/model"
)

// Registry is the authoritative in-memory mapping from connection to player.
// All methods are safe for concurrent use; the lock is never held across I/O.
type Registry struct {
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	players map[model.ConnectionID]*model.Player
	// lastNumber only ever grows, so player ids are never reused
	lastNumber uint64
}

// New creates an empty Registry
func New(clk clock.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		clock:   clk,
		logger:  logger.With(slog.String("component", "session-registry")),
		players: make(map[model.ConnectionID]*model.Player),
	}
}

// Register allocates the next player id for a connection and records it.
// A connection that is already registered is a transport contract breach:
// the existing record is kept and ErrDuplicateConnection is returned.
func (r *Registry) Register(connID model.ConnectionID) (*model.Player, error) {
	r.mu.Lock()
	if existing, ok := r.players[connID]; ok {
		r.mu.Unlock()
		r.logger.Error("duplicate registration for live connection",
			slog.String("connection_id", string(connID)),
			slog.String("player_id", string(existing.ID)))
		return nil, fmt.Errorf("register %s: %w", connID, model.ErrDuplicateConnection)
	}

	r.lastNumber++
	player := &model.Player{
		ConnectionID: connID,
		ID:           model.NewPlayerID(r.lastNumber),
		Number:       r.lastNumber,
		ConnectedAt:  r.clock.Now(),
	}
	r.players[connID] = player
	r.mu.Unlock()

	return player, nil
}

// Unregister removes and returns the record for a connection.
// Returns ErrPlayerNotFound if it was never registered or is already gone.
func (r *Registry) Unregister(connID model.ConnectionID) (*model.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.players[connID]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	delete(r.players, connID)
	return player, nil
}

// Get returns the record for a connection
func (r *Registry) Get(connID model.ConnectionID) (*model.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.players[connID]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	return player, nil
}

// Count returns the number of live players
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Players returns a snapshot of live players ordered by join order
func (r *Registry) Players() []*model.Player {
	r.mu.Lock()
	players := make([]*model.Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	r.mu.Unlock()

	sort.Slice(players, func(i, j int) bool {
		return players[i].Number < players[j].Number
	})
	return players
}

// Clear drops every record and returns how many were dropped.
// The id counter is left alone.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.players)
	r.players = make(map[model.ConnectionID]*model.Player)
	return n
}
