package handler

import (
	"net/http"

	"github.com/mcoot/playerhub/internal/api/response"
	"github.com/mcoot/playerhub/internal/dependencies/clock"
	"github.com/mcoot/playerhub/internal/services/session"
)

// StatusHandler serves the read-only status endpoints
type StatusHandler struct {
	registry *session.Registry
	clock    clock.Clock
	version  string
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(registry *session.Registry, clk clock.Clock, version string) *StatusHandler {
	return &StatusHandler{
		registry: registry,
		clock:    clk,
		version:  version,
	}
}

// Health handles GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, response.NewHealth(h.clock.Now(), h.registry.Count()))
}

// Status handles GET /
func (h *StatusHandler) Status(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, response.NewStatus(h.version, h.registry.Players()))
}
