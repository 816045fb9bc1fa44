package presence

import (
	"context"

	"github.com/mcoot/playerhub/internal/model"
)

// Publisher mirrors outbound session events to observers outside the process.
// It is a live feed only; nothing published is read back by the server.
type Publisher interface {
	Publish(ctx context.Context, event model.OutboundEvent) error
	Close() error
}

// Nop is a Publisher that drops everything
type Nop struct{}

// Ensure Nop implements Publisher
var _ Publisher = Nop{}

// Publish does nothing
func (Nop) Publish(context.Context, model.OutboundEvent) error { return nil }

// Close does nothing
func (Nop) Close() error { return nil }
