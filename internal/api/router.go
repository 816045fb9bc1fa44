package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcoot/playerhub/internal/api/handler"
	"github.com/mcoot/playerhub/internal/api/middleware"
	"github.com/mcoot/playerhub/internal/dependencies/clock"
	"github.com/mcoot/playerhub/internal/services/session"
)

// RouterConfig holds configuration for the HTTP router
type RouterConfig struct {
	Logger   *slog.Logger
	Registry *session.Registry
	Clock    clock.Clock
	// WebSocket is mounted at /ws
	WebSocket http.Handler
	// Metrics is served at /metrics when non-nil
	Metrics prometheus.Gatherer
	Version string
}

// NewRouter creates a new router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(handler.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(handler.MethodNotAllowed)

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	statusHandler := handler.NewStatusHandler(cfg.Registry, cfg.Clock, cfg.Version)

	r.HandleFunc("/", statusHandler.Status).Methods(http.MethodGet)
	r.HandleFunc("/health", statusHandler.Health).Methods(http.MethodGet)
	r.Handle("/ws", cfg.WebSocket).Methods(http.MethodGet)

	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return r
}
