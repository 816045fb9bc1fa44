package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcoot/playerhub/internal/dependencies/clock"
	"github.com/mcoot/playerhub/internal/metrics"
	"github.com/mcoot/playerhub/internal/model"
	"github.com/mcoot/playerhub/internal/presence"
	"github.com/mcoot/playerhub/internal/services/session"
)

const (
	tracerName        = "playerhub/realtime"
	inboundBufferSize = 256

	welcomeMessageFormat = "Welcome to the game, %s!"
	greetingAckMessage   = "Greeting received"
	shutdownMessage      = "Server is shutting down"
)

// Submitter accepts inbound events for processing
type Submitter interface {
	Submit(event model.InboundEvent) bool
}

// Broadcaster consumes inbound events one at a time, keeps the session
// registry current and fans outbound events out to connections
type Broadcaster struct {
	registry *session.Registry
	hub      *Hub
	clock    clock.Clock
	metrics  *metrics.Metrics
	feed     *feed
	tracer   trace.Tracer
	logger   *slog.Logger

	accepting atomic.Bool

	// mu guards closed; Submit holds it for reading while enqueuing
	mu      sync.RWMutex
	closed  bool
	inbound chan model.InboundEvent
	stopped chan struct{}
}

// Option configures a Broadcaster
type Option func(*Broadcaster)

// WithTracerProvider sets where dispatch spans are recorded. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Broadcaster) {
		if tp != nil {
			b.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewBroadcaster creates a Broadcaster that accepts connections until shut down
func NewBroadcaster(
	registry *session.Registry,
	hub *Hub,
	clk clock.Clock,
	publisher presence.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts ...Option,
) *Broadcaster {
	logger = logger.With(slog.String("component", "broadcaster"))
	if publisher == nil {
		publisher = presence.Nop{}
	}

	b := &Broadcaster{
		registry: registry,
		hub:      hub,
		clock:    clk,
		metrics:  m,
		feed:     newFeed(publisher, logger),
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
		inbound:  make(chan model.InboundEvent, inboundBufferSize),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.accepting.Store(true)
	return b
}

// Accepting reports whether new connections are admitted
func (b *Broadcaster) Accepting() bool {
	return b.accepting.Load()
}

// Submit queues an event for the event loop.
// Returns false once the loop has stopped taking events.
func (b *Broadcaster) Submit(event model.InboundEvent) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}
	b.inbound <- event
	return true
}

// Run processes events until a shutdown has been handled or ctx is cancelled.
// Cancelling ctx performs the same shutdown as ShutdownRequested.
func (b *Broadcaster) Run(ctx context.Context) {
	defer close(b.stopped)
	b.feed.start()
	defer b.feed.close()

	b.logger.Info("event loop started")
	for {
		select {
		case event := <-b.inbound:
			b.Handle(ctx, event)
			if _, ok := event.(model.ShutdownRequested); ok {
				b.drain(ctx)
				b.logger.Info("event loop stopped")
				return
			}
		case <-ctx.Done():
			stopCtx := context.WithoutCancel(ctx)
			b.Handle(stopCtx, model.ShutdownRequested{})
			b.drain(stopCtx)
			b.logger.Info("event loop stopped", slog.String("reason", "context cancelled"))
			return
		}
	}
}

// drain refuses further submissions and handles whatever is still queued
func (b *Broadcaster) drain(ctx context.Context) {
	locked := make(chan struct{})
	go func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(locked)
	}()

	for {
		select {
		case event := <-b.inbound:
			b.Handle(ctx, event)
		case <-locked:
			for {
				select {
				case event := <-b.inbound:
					b.Handle(ctx, event)
				default:
					return
				}
			}
		}
	}
}

// Shutdown requests a shutdown and waits until the event loop has stopped
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	if b.Submit(model.ShutdownRequested{Done: done}) {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for shutdown: %w", ctx.Err())
		}
	}

	select {
	case <-b.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for event loop: %w", ctx.Err())
	}
}

// Handle dispatches a single event synchronously
func (b *Broadcaster) Handle(ctx context.Context, event model.InboundEvent) {
	ctx, span := b.tracer.Start(ctx, "dispatch "+string(event.Type()),
		trace.WithAttributes(attribute.String("playerhub.event", string(event.Type()))))
	defer span.End()

	b.metrics.ObserveInbound(event.Type())

	switch e := event.(type) {
	case model.ConnectionEstablished:
		b.handleConnect(ctx, e)
	case model.GreetingReceived:
		b.handleGreeting(ctx, e)
	case model.ChatReceived:
		b.handleChat(ctx, e)
	case model.ConnectionClosed:
		b.handleDisconnect(ctx, e)
	case model.TransportError:
		b.handleTransportError(ctx, e)
	case model.ShutdownRequested:
		b.handleShutdown(ctx, e)
	default:
		b.logger.Warn("unhandled inbound event", slog.String("type", fmt.Sprintf("%T", event)))
	}
}

func (b *Broadcaster) handleConnect(ctx context.Context, e model.ConnectionEstablished) {
	span := trace.SpanFromContext(ctx)
	if e.Outbox == nil {
		b.logger.Warn("connection event without outbox")
		return
	}
	connID := e.Outbox.ID()
	span.SetAttributes(connectionAttr(connID))

	if !b.accepting.Load() {
		b.logger.Info("connection rejected, server shutting down", slog.String("connection_id", string(connID)))
		if err := e.Outbox.Close(); err != nil {
			b.logger.Warn("close rejected connection", slog.String("connection_id", string(connID)), slog.Any("error", err))
		}
		return
	}

	player, err := b.registry.Register(connID)
	if err != nil {
		// The live connection keeps its identity. The newcomer is closed; its
		// close event names its own outbox and is ignored in handleDisconnect.
		span.RecordError(err)
		span.SetStatus(codes.Error, "register failed")
		if err := e.Outbox.Close(); err != nil {
			b.logger.Warn("close duplicate connection", slog.String("connection_id", string(connID)), slog.Any("error", err))
		}
		return
	}
	span.SetAttributes(playerAttr(player.ID))

	b.hub.Add(e.Outbox)
	total := b.registry.Count()
	b.metrics.PlayersRegistered.Inc()
	b.metrics.SetConnected(total)

	b.logger.Info("player connected",
		slog.String("player_id", string(player.ID)),
		slog.String("connection_id", string(connID)),
		slog.Int("total_players", total))

	b.unicast(connID, model.Welcome{
		PlayerID:     player.ID,
		Message:      fmt.Sprintf(welcomeMessageFormat, player.ID),
		TotalPlayers: total,
	})
	b.broadcastOthers(connID, model.PlayerJoined{
		PlayerID:     player.ID,
		TotalPlayers: total,
	})
}

func (b *Broadcaster) handleGreeting(ctx context.Context, e model.GreetingReceived) {
	player, ok := b.sender(e.Source, e.Type())
	if !ok {
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(connectionAttr(e.Source), playerAttr(player.ID))

	b.logger.Debug("greeting received", slog.String("player_id", string(player.ID)))
	b.unicast(e.Source, model.GreetingAck{
		Message:         greetingAckMessage,
		PlayerID:        player.ID,
		Timestamp:       b.clock.Now(),
		OriginalPayload: e.Payload,
	})
}

func (b *Broadcaster) handleChat(ctx context.Context, e model.ChatReceived) {
	player, ok := b.sender(e.Source, e.Type())
	if !ok {
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(connectionAttr(e.Source), playerAttr(player.ID))

	b.logger.Debug("chat message",
		slog.String("player_id", string(player.ID)),
		slog.Int("length", len(e.Message)))
	b.broadcastAll(model.ChatMessage{
		PlayerID:  player.ID,
		Message:   e.Message,
		Timestamp: b.clock.Now(),
	})
}

func (b *Broadcaster) handleDisconnect(ctx context.Context, e model.ConnectionClosed) {
	if !b.hub.Remove(e.Source, e.Outbox) && e.Outbox != nil {
		b.logger.Debug("close from untracked connection handle", slog.String("connection_id", string(e.Source)))
		return
	}

	player, err := b.registry.Unregister(e.Source)
	if errors.Is(err, model.ErrPlayerNotFound) {
		// Rejected, never registered, or already cleared by shutdown
		b.logger.Debug("disconnect for unknown connection", slog.String("connection_id", string(e.Source)))
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(connectionAttr(e.Source), playerAttr(player.ID))

	total := b.registry.Count()
	b.metrics.SetConnected(total)

	b.logger.Info("player disconnected",
		slog.String("player_id", string(player.ID)),
		slog.String("connection_id", string(e.Source)),
		slog.Duration("session", b.clock.Now().Sub(player.ConnectedAt)),
		slog.Int("total_players", total))

	b.broadcastOthers(e.Source, model.PlayerLeft{
		PlayerID:     player.ID,
		TotalPlayers: total,
	})
}

func (b *Broadcaster) handleTransportError(ctx context.Context, e model.TransportError) {
	trace.SpanFromContext(ctx).RecordError(e.Err)
	b.logger.Warn("transport error",
		slog.String("connection_id", string(e.Source)),
		slog.Any("error", e.Err))
}

func (b *Broadcaster) handleShutdown(_ context.Context, e model.ShutdownRequested) {
	defer func() {
		if e.Done != nil {
			close(e.Done)
		}
	}()

	if !b.accepting.Swap(false) {
		b.logger.Debug("shutdown already handled")
		return
	}

	b.logger.Info("shutting down", slog.Int("total_players", b.registry.Count()))
	b.broadcastAll(model.ServerShutdown{
		Message:   shutdownMessage,
		Timestamp: b.clock.Now(),
	})

	closed := b.hub.CloseAll()
	cleared := b.registry.Clear()
	b.metrics.SetConnected(0)

	b.logger.Info("all connections closed",
		slog.Int("connections_closed", closed),
		slog.Int("players_cleared", cleared))
}

// sender looks up the player behind a connection-scoped event
func (b *Broadcaster) sender(connID model.ConnectionID, t model.EventType) (*model.Player, bool) {
	player, err := b.registry.Get(connID)
	if err != nil {
		b.logger.Warn("event from unregistered connection, skipping",
			slog.String("connection_id", string(connID)),
			slog.String("event", string(t)))
		return nil, false
	}
	return player, true
}

func (b *Broadcaster) unicast(connID model.ConnectionID, event model.OutboundEvent) {
	// Failures are logged and counted by the hub
	_ = b.hub.SendTo(connID, event)
}

func (b *Broadcaster) broadcastOthers(except model.ConnectionID, event model.OutboundEvent) {
	b.hub.BroadcastOthers(except, event)
	b.feed.enqueue(event)
}

func (b *Broadcaster) broadcastAll(event model.OutboundEvent) {
	b.hub.BroadcastAll(event)
	b.feed.enqueue(event)
}

func connectionAttr(id model.ConnectionID) attribute.KeyValue {
	return attribute.String("playerhub.connection_id", string(id))
}

func playerAttr(id model.PlayerID) attribute.KeyValue {
	return attribute.String("playerhub.player_id", string(id))
}
