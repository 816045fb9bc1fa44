package realtime

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mcoot/playerhub/internal/api/apierr"
	"github.com/mcoot/playerhub/internal/dependencies/ids"
	"github.com/mcoot/playerhub/internal/model"
)

// Handler upgrades HTTP requests to WebSocket connections and hands them to
// the broadcaster
type Handler struct {
	broadcaster *Broadcaster
	ids         ids.Generator
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(broadcaster *Broadcaster, idGen ids.Generator, logger *slog.Logger) *Handler {
	return &Handler{
		broadcaster: broadcaster,
		ids:         idGen,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With(slog.String("component", "ws-handler")),
	}
}

// ServeHTTP handles GET /ws
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.broadcaster.Accepting() {
		apierr.WriteError(w, model.ErrNotAccepting)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Warn("websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.Any("error", err))
		return
	}

	client := newClient(h.ids.NewConnectionID(), conn, h.broadcaster, h.logger)
	go client.writePump()

	if !h.broadcaster.Submit(model.ConnectionEstablished{Outbox: client}) {
		_ = client.Close()
		return
	}
	go client.readPump()

	h.logger.Debug("connection accepted",
		slog.String("connection_id", string(client.ID())),
		slog.String("remote_addr", r.RemoteAddr))
}
