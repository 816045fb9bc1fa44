package mocks

import (
	"fmt"
	"sync"

	"github.com/mcoot/playerhub/internal/dependencies/ids"
	"github.com/mcoot/playerhub/internal/model"
)

// MockIDs is a deterministic Generator that yields conn-1, conn-2, ...
type MockIDs struct {
	mu     sync.Mutex
	next   int
	queued []model.ConnectionID
}

// Ensure MockIDs implements Generator
var _ ids.Generator = (*MockIDs)(nil)

// NewMockIDs creates a new MockIDs
func NewMockIDs() *MockIDs {
	return &MockIDs{}
}

// NewConnectionID returns the next queued id, or the next sequential one
func (g *MockIDs) NewConnectionID() model.ConnectionID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queued) > 0 {
		id := g.queued[0]
		g.queued = g.queued[1:]
		return id
	}
	g.next++
	return model.ConnectionID(fmt.Sprintf("conn-%d", g.next))
}

// Queue adds ids to be returned before falling back to the sequence
func (g *MockIDs) Queue(values ...model.ConnectionID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queued = append(g.queued, values...)
}
