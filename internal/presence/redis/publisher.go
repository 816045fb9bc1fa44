package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/playerhub/internal/model"
	"github.com/mcoot/playerhub/internal/presence"
	"github.com/mcoot/playerhub/internal/protocol"
)

// Publisher publishes session events to a Redis pub/sub channel using the
// same envelope clients receive over the WebSocket
type Publisher struct {
	client *redis.Client
	cfg    Config
}

// New creates a Publisher and verifies the connection
func New(cfg Config) (*Publisher, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Publisher with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Publisher {
	if cfg.Channel == "" {
		cfg.Channel = eventsChannel()
	}
	return &Publisher{
		client: client,
		cfg:    cfg,
	}
}

// Ensure Publisher implements the interface
var _ presence.Publisher = (*Publisher)(nil)

// Publish encodes the event and publishes it to the configured channel
func (p *Publisher) Publish(ctx context.Context, event model.OutboundEvent) error {
	frame, err := protocol.Encode(event)
	if err != nil {
		return err
	}

	if p.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PublishTimeout)
		defer cancel()
	}

	if err := p.client.Publish(ctx, p.cfg.Channel, frame).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type(), err)
	}
	return nil
}

// Channel returns the channel events are published to
func (p *Publisher) Channel() string {
	return p.cfg.Channel
}

// Close closes the Redis connection
func (p *Publisher) Close() error {
	return p.client.Close()
}
