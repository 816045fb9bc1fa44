package ids

import (
	"github.com/google/uuid"

	"github.com/mcoot/playerhub/internal/model"
)

// Generator hands out connection identities for the transport
type Generator interface {
	NewConnectionID() model.ConnectionID
}

// UUIDGenerator issues random (v4) UUIDs, which are never reused in practice
type UUIDGenerator struct{}

// New creates a new UUIDGenerator
func New() *UUIDGenerator {
	return &UUIDGenerator{}
}

// NewConnectionID returns a fresh UUID-backed connection id
func (g *UUIDGenerator) NewConnectionID() model.ConnectionID {
	return model.ConnectionID(uuid.NewString())
}
