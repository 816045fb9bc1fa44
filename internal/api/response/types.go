package response

import (
	"time"

	"github.com/mcoot/playerhub/internal/model"
	"github.com/mcoot/playerhub/internal/protocol"
)

// Health is the liveness payload for GET /health
type Health struct {
	Message          string `json:"message"`
	Timestamp        string `json:"timestamp"`
	ConnectedPlayers int    `json:"connectedPlayers"`
}

// NewHealth builds a Health response
func NewHealth(now time.Time, connected int) Health {
	return Health{
		Message:          "Server is running",
		Timestamp:        protocol.FormatTimestamp(now),
		ConnectedPlayers: connected,
	}
}

// Player is a live player in the status listing
type Player struct {
	PlayerID    string `json:"playerId"`
	ConnectedAt string `json:"connectedAt"`
}

// PlayerFromModel converts a model.Player
func PlayerFromModel(p *model.Player) Player {
	return Player{
		PlayerID:    string(p.ID),
		ConnectedAt: protocol.FormatTimestamp(p.ConnectedAt),
	}
}

// Status describes the server for GET /
type Status struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Version          string   `json:"version"`
	Events           []string `json:"events"`
	ConnectedPlayers int      `json:"connectedPlayers"`
	Players          []Player `json:"players"`
}

// NewStatus builds a Status response from a registry snapshot
func NewStatus(version string, players []*model.Player) Status {
	list := make([]Player, len(players))
	for i, p := range players {
		list[i] = PlayerFromModel(p)
	}

	return Status{
		Name:        "playerhub",
		Description: "Real-time multiplayer session server. Connect a WebSocket to /ws.",
		Version:     version,
		Events: []string{
			string(model.EventWelcome),
			string(model.EventPlayerJoined),
			string(model.EventPlayerLeft),
			string(model.EventGreetingAck),
			string(model.EventChatMessage),
			string(model.EventServerShutdown),
		},
		ConnectedPlayers: len(players),
		Players:          list,
	}
}
