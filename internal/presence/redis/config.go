package redis

import "time"

// Config holds Redis connection and publishing settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// Channel is the pub/sub channel events are published to.
	// Defaults to "playerhub:events".
	Channel string

	// PublishTimeout bounds a single PUBLISH so a slow Redis never stalls the event loop
	PublishTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:            "redis://localhost:6379",
		PoolSize:       10,
		MinIdleConns:   2,
		Channel:        eventsChannel(),
		PublishTimeout: 500 * time.Millisecond,
	}
}
