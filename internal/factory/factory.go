package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcoot/playerhub/internal/config"
	"github.com/mcoot/playerhub/internal/dependencies/clock"
	"github.com/mcoot/playerhub/internal/dependencies/ids"
	"github.com/mcoot/playerhub/internal/metrics"
	"github.com/mcoot/playerhub/internal/presence"
	presenceredis "github.com/mcoot/playerhub/internal/presence/redis"
	"github.com/mcoot/playerhub/internal/realtime"
	"github.com/mcoot/playerhub/internal/services/session"
)

// App contains all wired application components
type App struct {
	// External dependencies
	Clock clock.Clock
	IDs   ids.Generator

	// Observability
	MetricsRegistry *prometheus.Registry
	Metrics         *metrics.Metrics

	// Presence feed
	Presence presence.Publisher

	// Session layer
	Registry    *session.Registry
	Hub         *realtime.Hub
	Broadcaster *realtime.Broadcaster
	WSHandler   *realtime.Handler
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// PresenceBackend selects the presence feed ("none" or "redis")
	// If empty, defaults to "none"
	PresenceBackend string
	// RedisConfig holds Redis connection settings (required if PresenceBackend is "redis")
	RedisConfig *presenceredis.Config
	// TracerProvider records broadcaster dispatch spans (optional)
	// If nil, the global provider is used
	TracerProvider trace.TracerProvider
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var publisher presence.Publisher
	backend := cfg.PresenceBackend
	if backend == "" {
		backend = config.PresenceBackendNone
	}

	switch backend {
	case config.PresenceBackendNone:
		publisher = presence.Nop{}
	case config.PresenceBackendRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when PresenceBackend is redis")
		}
		redisPublisher, err := presenceredis.New(*cfg.RedisConfig)
		if err != nil {
			return nil, fmt.Errorf("connect presence feed: %w", err)
		}
		publisher = redisPublisher
	default:
		return nil, errors.New("invalid PresenceBackend: must be 'none' or 'redis'")
	}

	return newWithDependencies(clock.New(), ids.New(), publisher, logger,
		realtime.WithTracerProvider(cfg.TracerProvider)), nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	clk clock.Clock,
	idGen ids.Generator,
	publisher presence.Publisher,
	logger *slog.Logger,
	opts ...realtime.Option,
) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	registry := session.New(clk, logger)
	hub := realtime.NewHub(m, logger)
	broadcaster := realtime.NewBroadcaster(registry, hub, clk, publisher, m, logger, opts...)
	wsHandler := realtime.NewHandler(broadcaster, idGen, logger)

	return &App{
		Clock:           clk,
		IDs:             idGen,
		MetricsRegistry: reg,
		Metrics:         m,
		Presence:        publisher,
		Registry:        registry,
		Hub:             hub,
		Broadcaster:     broadcaster,
		WSHandler:       wsHandler,
	}
}

// Close releases external connections. Call after the broadcaster has shut down.
func (a *App) Close() error {
	return a.Presence.Close()
}
