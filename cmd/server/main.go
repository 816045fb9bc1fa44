package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/mcoot/playerhub/internal/api"
	"github.com/mcoot/playerhub/internal/config"
	"github.com/mcoot/playerhub/internal/factory"
	presenceredis "github.com/mcoot/playerhub/internal/presence/redis"
	"github.com/mcoot/playerhub/internal/tracing"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", os.Getenv("PLAYERHUB_CONFIG"), "Path to config file (env: PLAYERHUB_CONFIG)")
	flag.Parse()

	// A missing .env file is fine; the environment may already be set
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		return 1
	}

	logger := newLogger(os.Stdout, cfg.Logging)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("no .env file loaded", slog.String("error", envErr.Error()))
	}

	// Spans go to stderr so they don't interleave with stdout logs
	tracerProvider, shutdownTracing, err := tracing.Setup(cfg.Tracing, os.Stderr, version)
	if err != nil {
		logger.Error("failed to set up tracing", slog.String("error", err.Error()))
		return 1
	}
	otel.SetTracerProvider(tracerProvider)

	// Build factory config from the loaded configuration
	factoryCfg := factory.Config{
		Logger:          logger,
		PresenceBackend: cfg.Presence.Backend,
		TracerProvider:  tracerProvider,
	}
	if cfg.Presence.Backend == config.PresenceBackendRedis {
		redisCfg := presenceredis.DefaultConfig()
		redisCfg.URL = cfg.Presence.RedisURL
		redisCfg.Channel = cfg.Presence.Channel
		factoryCfg.RedisConfig = &redisCfg
	}

	app, err := factory.New(factoryCfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		return 1
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go app.Broadcaster.Run(loopCtx)

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = app.MetricsRegistry
	}

	router := api.NewRouter(api.RouterConfig{
		Logger:    logger,
		Registry:  app.Registry,
		Clock:     app.Clock,
		WebSocket: app.WSHandler,
		Metrics:   gatherer,
		Version:   version,
	})

	serverConfig := api.ServerConfigFrom(cfg.Server)
	server := api.NewServer(router, serverConfig, logger)

	// Handle graceful shutdown
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("version", version),
		slog.String("presence", cfg.Presence.Backend),
		slog.Bool("tracing", cfg.Tracing.Enabled),
	)

	exitCode := 0

	// Wait for shutdown or error
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			exitCode = 1
		}
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Players are told and disconnected before the listener stops
	if err := app.Broadcaster.Shutdown(shutdownCtx); err != nil {
		logger.Error("session shutdown error", slog.String("error", err.Error()))
		exitCode = 1
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		exitCode = 1
	}
	if err := app.Close(); err != nil {
		logger.Warn("failed to close presence feed", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("failed to flush spans", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return exitCode
}

func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
