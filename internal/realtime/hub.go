package realtime

import (
	"log/slog"
	"sync"

	"github.com/mcoot/playerhub/internal/metrics"
	"github.com/mcoot/playerhub/internal/model"
)

// Hub holds the outbound handle of every live connection
type Hub struct {
	outboxes map[model.ConnectionID]model.Outbox
	mu       sync.RWMutex
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHub creates an empty Hub
func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		outboxes: make(map[model.ConnectionID]model.Outbox),
		metrics:  m,
		logger:   logger.With(slog.String("component", "hub")),
	}
}

// Add starts tracking an outbox, replacing any previous one with the same id
func (h *Hub) Add(outbox model.Outbox) {
	h.mu.Lock()
	h.outboxes[outbox.ID()] = outbox
	h.mu.Unlock()
}

// Remove stops tracking a connection. When owner is non-nil the entry is only
// removed if it is that outbox. The outbox is not closed.
func (h *Hub) Remove(id model.ConnectionID, owner model.Outbox) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.outboxes[id]
	if !ok || (owner != nil && current != owner) {
		return false
	}
	delete(h.outboxes, id)
	return true
}

// SendTo delivers an event to a single connection
func (h *Hub) SendTo(id model.ConnectionID, event model.OutboundEvent) error {
	h.mu.RLock()
	outbox, ok := h.outboxes[id]
	h.mu.RUnlock()

	if !ok {
		h.metrics.ObserveDelivery(event.Type(), model.ErrConnectionClosed)
		return model.ErrConnectionClosed
	}
	return h.deliver(outbox, event)
}

// BroadcastAll delivers an event to every live connection.
// Returns the number of connections it was queued for.
func (h *Hub) BroadcastAll(event model.OutboundEvent) int {
	return h.broadcast(event, func(model.ConnectionID) bool { return true })
}

// BroadcastOthers delivers an event to every live connection except one
func (h *Hub) BroadcastOthers(except model.ConnectionID, event model.OutboundEvent) int {
	return h.broadcast(event, func(id model.ConnectionID) bool { return id != except })
}

func (h *Hub) broadcast(event model.OutboundEvent, include func(model.ConnectionID) bool) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	failed := 0
	for id, outbox := range h.outboxes {
		if !include(id) {
			continue
		}
		if err := h.deliver(outbox, event); err != nil {
			failed++
			continue
		}
		sent++
	}
	if failed > 0 {
		h.logger.Warn("broadcast partial failure",
			slog.String("event", string(event.Type())),
			slog.Int("sent", sent),
			slog.Int("failed", failed))
	}
	return sent
}

// deliver never blocks: Outbox.Send only queues
func (h *Hub) deliver(outbox model.Outbox, event model.OutboundEvent) error {
	err := outbox.Send(event)
	h.metrics.ObserveDelivery(event.Type(), err)
	if err != nil {
		h.logger.Warn("delivery failed",
			slog.String("connection_id", string(outbox.ID())),
			slog.String("event", string(event.Type())),
			slog.Any("error", err))
	}
	return err
}

// CloseAll closes every connection concurrently, waits for each to confirm
// and forgets them. Returns the number of connections closed.
func (h *Hub) CloseAll() int {
	h.mu.Lock()
	outboxes := make([]model.Outbox, 0, len(h.outboxes))
	for _, outbox := range h.outboxes {
		outboxes = append(outboxes, outbox)
	}
	h.outboxes = make(map[model.ConnectionID]model.Outbox)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, outbox := range outboxes {
		wg.Add(1)
		go func(o model.Outbox) {
			defer wg.Done()
			if err := o.Close(); err != nil {
				h.logger.Warn("close failed",
					slog.String("connection_id", string(o.ID())),
					slog.Any("error", err))
			}
		}(outbox)
	}
	wg.Wait()
	return len(outboxes)
}

// Count returns the number of live connections
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.outboxes)
}
