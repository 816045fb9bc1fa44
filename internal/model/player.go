package model

import (
	"fmt"
	"time"
)

// ConnectionID identifies a single transport connection.
// Assigned by the transport, stable for the connection's lifetime and never reused.
type ConnectionID string

// PlayerID is the server-assigned sequential player identity ("player_N")
type PlayerID string

// NewPlayerID formats the identity for the nth allocated player (1-indexed)
func NewPlayerID(n uint64) PlayerID {
	return PlayerID(fmt.Sprintf("player_%d", n))
}

// Player is the registry record for a connected client.
// Records are immutable once created.
type Player struct {
	ConnectionID ConnectionID
	ID           PlayerID
	Number       uint64 // sequence number backing ID
	ConnectedAt  time.Time
}
