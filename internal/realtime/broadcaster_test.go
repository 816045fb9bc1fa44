package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mcoot/playerhub/internal/dependencies/mocks"
	"github.com/mcoot/playerhub/internal/metrics"
	"github.com/mcoot/playerhub/internal/model"
	"github.com/mcoot/playerhub/internal/services/session"
	tu "github.com/mcoot/playerhub/internal/testutil"
)

type BroadcasterSuite struct {
	suite.Suite
	clock       *mocks.MockClock
	registry    *session.Registry
	hub         *Hub
	metrics     *metrics.Metrics
	publisher   *recordingPublisher
	broadcaster *Broadcaster
	ctx         context.Context
}

func TestBroadcasterSuite(t *testing.T) {
	suite.Run(t, new(BroadcasterSuite))
}

func (s *BroadcasterSuite) SetupTest() {
	logger := tu.NopLogger()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.registry = session.New(s.clock, logger)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.hub = NewHub(s.metrics, logger)
	s.publisher = &recordingPublisher{}
	s.broadcaster = NewBroadcaster(s.registry, s.hub, s.clock, s.publisher, s.metrics, logger)
	s.ctx = context.Background()
}

func (s *BroadcasterSuite) connect(id model.ConnectionID) *recordingOutbox {
	outbox := newRecordingOutbox(id)
	s.broadcaster.Handle(s.ctx, model.ConnectionEstablished{Outbox: outbox})
	return outbox
}

// Connection tests

func (s *BroadcasterSuite) TestConnect_FirstPlayerWelcomedAlone() {
	a := s.connect("conn-a")

	s.Require().Len(a.Events(), 1)
	s.Equal(model.Welcome{
		PlayerID:     "player_1",
		Message:      "Welcome to the game, player_1!",
		TotalPlayers: 1,
	}, a.Events()[0])
	s.Equal(1, s.registry.Count())
	s.Equal(1, s.hub.Count())
}

func (s *BroadcasterSuite) TestConnect_SecondPlayerAnnouncedToOthersOnly() {
	a := s.connect("conn-a")
	a.Reset()

	b := s.connect("conn-b")

	s.Equal([]model.OutboundEvent{
		model.Welcome{PlayerID: "player_2", Message: "Welcome to the game, player_2!", TotalPlayers: 2},
	}, b.Events())
	s.Equal([]model.OutboundEvent{
		model.PlayerJoined{PlayerID: "player_2", TotalPlayers: 2},
	}, a.Events())
}

func (s *BroadcasterSuite) TestConnect_DuplicateKeepsOriginal() {
	a := s.connect("conn-a")
	dup := s.connect("conn-a")

	s.Empty(dup.Events())
	s.True(dup.IsClosed())
	s.False(a.IsClosed())
	s.Len(a.Events(), 1)
	s.Equal(1, s.registry.Count())
	s.Equal(1, s.hub.Count())

	player, err := s.registry.Get("conn-a")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("player_1"), player.ID)
}

func (s *BroadcasterSuite) TestConnect_DuplicateCloseIgnored() {
	a := s.connect("conn-a")
	b := s.connect("conn-b")
	dup := s.connect("conn-a")
	a.Reset()
	b.Reset()

	s.broadcaster.Handle(s.ctx, model.ConnectionClosed{Source: "conn-a", Outbox: dup})

	s.Equal(2, s.registry.Count())
	s.Equal(2, s.hub.Count())
	s.Empty(b.Events())

	s.broadcaster.Handle(s.ctx, model.ChatReceived{Source: "conn-a", Message: "still here"})
	s.Require().Len(a.Events(), 1)
	s.Equal(model.EventChatMessage, a.Events()[0].Type())
	s.Require().Len(b.Events(), 1)

	// The original's own close still unregisters it
	s.broadcaster.Handle(s.ctx, model.ConnectionClosed{Source: "conn-a", Outbox: a})
	s.Equal(1, s.registry.Count())
	s.Equal(model.PlayerLeft{PlayerID: "player_1", TotalPlayers: 1}, b.Last())
}

func (s *BroadcasterSuite) TestConnect_RejectedAfterShutdown() {
	s.broadcaster.Handle(s.ctx, model.ShutdownRequested{})

	late := s.connect("conn-late")

	s.True(late.IsClosed())
	s.Empty(late.Events())
	s.Equal(0, s.registry.Count())
	s.Equal(0, s.hub.Count())
}

// Disconnect tests

func (s *BroadcasterSuite) TestDisconnect_AnnouncedToRemaining() {
	a := s.connect("conn-a")
	b := s.connect("conn-b")
	a.Reset()
	b.Reset()

	s.broadcaster.Handle(s.ctx, model.ConnectionClosed{Source: "conn-a"})

	s.Empty(a.Events())
	s.Equal([]model.OutboundEvent{
		model.PlayerLeft{PlayerID: "player_1", TotalPlayers: 1},
	}, b.Events())
	s.Equal(1, s.registry.Count())
	s.Equal(1, s.hub.Count())
}

func (s *BroadcasterSuite) TestDisconnect_UnknownConnectionIsSilent() {
	a := s.connect("conn-a")
	a.Reset()

	s.broadcaster.Handle(s.ctx, model.ConnectionClosed{Source: "conn-ghost"})

	s.Empty(a.Events())
	s.Equal(1, s.registry.Count())
}

func (s *BroadcasterSuite) TestDisconnect_Twice() {
	s.connect("conn-a")
	b := s.connect("conn-b")
	b.Reset()

	s.broadcaster.Handle(s.ctx, model.ConnectionClosed{Source: "conn-a"})
	s.broadcaster.Handle(s.ctx, model.ConnectionClosed{Source: "conn-a"})

	s.Len(b.Events(), 1)
}

func (s *BroadcasterSuite) TestDisconnect_IDsNotReused() {
	s.connect("conn-a")
	s.broadcaster.Handle(s.ctx, model.ConnectionClosed{Source: "conn-a"})

	b := s.connect("conn-b")
	s.Equal(model.PlayerID("player_2"), b.Events()[0].(model.Welcome).PlayerID)
	s.Equal(1, b.Events()[0].(model.Welcome).TotalPlayers)
}

// Greeting tests

func (s *BroadcasterSuite) TestGreeting_AckedToSenderOnly() {
	a := s.connect("conn-a")
	b := s.connect("conn-b")
	a.Reset()
	b.Reset()

	payload := json.RawMessage(`{"message":"hi","timestamp":"2024-01-01T11:59:59.000Z"}`)
	s.broadcaster.Handle(s.ctx, model.GreetingReceived{Source: "conn-b", Payload: payload})

	s.Empty(a.Events())
	s.Equal([]model.OutboundEvent{
		model.GreetingAck{
			Message:         "Greeting received",
			PlayerID:        "player_2",
			Timestamp:       s.clock.Now(),
			OriginalPayload: payload,
		},
	}, b.Events())
}

func (s *BroadcasterSuite) TestGreeting_UnregisteredSkipped() {
	a := s.connect("conn-a")
	a.Reset()

	s.broadcaster.Handle(s.ctx, model.GreetingReceived{Source: "conn-ghost", Payload: json.RawMessage(`{}`)})

	s.Empty(a.Events())
}

// Chat tests

func (s *BroadcasterSuite) TestChat_BroadcastToAllIncludingSender() {
	outboxes := []*recordingOutbox{s.connect("conn-a"), s.connect("conn-b"), s.connect("conn-c")}
	for _, o := range outboxes {
		o.Reset()
	}

	s.clock.Advance(5 * time.Second)
	s.broadcaster.Handle(s.ctx, model.ChatReceived{Source: "conn-b", Message: "hello all"})

	want := model.ChatMessage{PlayerID: "player_2", Message: "hello all", Timestamp: s.clock.Now()}
	for _, o := range outboxes {
		s.Equal([]model.OutboundEvent{want}, o.Events(), "recipient %s", o.ID())
	}
}

func (s *BroadcasterSuite) TestChat_BlankMessagesBroadcastUnchanged() {
	a := s.connect("conn-a")
	b := s.connect("conn-b")
	a.Reset()
	b.Reset()

	s.broadcaster.Handle(s.ctx, model.ChatReceived{Source: "conn-a", Message: ""})
	s.broadcaster.Handle(s.ctx, model.ChatReceived{Source: "conn-a", Message: "   "})

	for _, o := range []*recordingOutbox{a, b} {
		events := o.Events()
		s.Require().Len(events, 2, "recipient %s", o.ID())
		s.Equal("", events[0].(model.ChatMessage).Message)
		s.Equal("   ", events[1].(model.ChatMessage).Message)
	}
}

func (s *BroadcasterSuite) TestChat_UnregisteredSkipped() {
	a := s.connect("conn-a")
	a.Reset()

	s.broadcaster.Handle(s.ctx, model.ChatReceived{Source: "conn-ghost", Message: "spoof"})

	s.Empty(a.Events())
}

func (s *BroadcasterSuite) TestChat_FailingRecipientDoesNotStopFanOut() {
	a := s.connect("conn-a")
	b := s.connect("conn-b")
	c := s.connect("conn-c")
	a.Reset()
	c.Reset()
	b.FailSends(model.ErrSendBufferFull)

	s.broadcaster.Handle(s.ctx, model.ChatReceived{Source: "conn-a", Message: "still here"})

	s.Len(a.Events(), 1)
	s.Len(c.Events(), 1)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.DeliveryFailures.WithLabelValues("chatMessage")))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.OutboundEvents.WithLabelValues("chatMessage")))
}

// Transport error tests

func (s *BroadcasterSuite) TestTransportError_LogOnly() {
	a := s.connect("conn-a")
	a.Reset()

	s.broadcaster.Handle(s.ctx, model.TransportError{Source: "conn-a", Err: errors.New("boom")})

	s.Empty(a.Events())
	s.Equal(1, s.registry.Count())
}

// Shutdown tests

func (s *BroadcasterSuite) TestShutdown_NotifiesThenClosesEveryone() {
	a := s.connect("conn-a")
	b := s.connect("conn-b")
	a.Reset()
	b.Reset()

	done := make(chan struct{})
	s.broadcaster.Handle(s.ctx, model.ShutdownRequested{Done: done})

	want := model.ServerShutdown{Message: "Server is shutting down", Timestamp: s.clock.Now()}
	for _, o := range []*recordingOutbox{a, b} {
		s.Equal([]model.OutboundEvent{want}, o.Events())
		s.True(o.IsClosed())
	}
	s.False(s.broadcaster.Accepting())
	s.Equal(0, s.registry.Count())
	s.Equal(0, s.hub.Count())
	s.Equal(0.0, testutil.ToFloat64(s.metrics.ConnectedPlayers))

	select {
	case <-done:
	default:
		s.Fail("done channel not closed")
	}
}

func (s *BroadcasterSuite) TestShutdown_SecondRequestIsNoop() {
	a := s.connect("conn-a")
	s.broadcaster.Handle(s.ctx, model.ShutdownRequested{})
	a.Reset()

	done := make(chan struct{})
	s.broadcaster.Handle(s.ctx, model.ShutdownRequested{Done: done})

	s.Empty(a.Events())
	s.Equal(1, a.closeCalls)
	_, open := <-done
	s.False(open)
}

func (s *BroadcasterSuite) TestShutdown_DisconnectAfterwardsIsSilent() {
	s.connect("conn-a")
	b := s.connect("conn-b")
	s.broadcaster.Handle(s.ctx, model.ShutdownRequested{})
	b.Reset()

	s.broadcaster.Handle(s.ctx, model.ConnectionClosed{Source: "conn-a"})

	s.Empty(b.Events())
}

func (s *BroadcasterSuite) TestShutdown_IDsNotReusedAfterClear() {
	s.connect("conn-a")
	s.broadcaster.Handle(s.ctx, model.ShutdownRequested{})

	// A fresh broadcaster over the same registry keeps counting
	fresh := NewBroadcaster(s.registry, s.hub, s.clock, nil, s.metrics, tu.NopLogger())
	o := newRecordingOutbox("conn-b")
	fresh.Handle(s.ctx, model.ConnectionEstablished{Outbox: o})
	s.Equal(model.PlayerID("player_2"), o.Events()[0].(model.Welcome).PlayerID)
}

// Metrics and presence tests

func (s *BroadcasterSuite) TestMetrics_TrackConnectedPlayers() {
	s.connect("conn-a")
	s.connect("conn-b")
	s.Equal(2.0, testutil.ToFloat64(s.metrics.ConnectedPlayers))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.PlayersRegistered))

	s.broadcaster.Handle(s.ctx, model.ConnectionClosed{Source: "conn-a"})
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ConnectedPlayers))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.InboundEvents.WithLabelValues("connection")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.InboundEvents.WithLabelValues("disconnect")))
}

func (s *BroadcasterSuite) TestPresence_BroadcastsMirroredToFeed() {
	s.connect("conn-a")
	s.connect("conn-b")
	s.broadcaster.Handle(s.ctx, model.ChatReceived{Source: "conn-a", Message: "hi"})
	s.broadcaster.Handle(s.ctx, model.ConnectionClosed{Source: "conn-b"})

	// Nothing is published until the loop runs
	s.Empty(s.publisher.Events())

	go s.broadcaster.Run(s.ctx)
	s.Require().NoError(s.broadcaster.Shutdown(s.ctx))

	s.Equal([]model.OutboundEvent{
		model.PlayerJoined{PlayerID: "player_1", TotalPlayers: 1},
		model.PlayerJoined{PlayerID: "player_2", TotalPlayers: 2},
		model.ChatMessage{PlayerID: "player_1", Message: "hi", Timestamp: s.clock.Now()},
		model.PlayerLeft{PlayerID: "player_2", TotalPlayers: 1},
		model.ServerShutdown{Message: shutdownMessage, Timestamp: s.clock.Now()},
	}, s.publisher.Events())
}

func (s *BroadcasterSuite) TestPresence_FeedWithoutRunClosesImmediately() {
	f := newFeed(s.publisher, tu.NopLogger())
	f.enqueue(model.PlayerJoined{PlayerID: "player_1", TotalPlayers: 1})

	closed := make(chan struct{})
	go func() {
		f.close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		s.Fail("close blocked on a feed that was never started")
	}
	s.Empty(s.publisher.Events())

	// Starting after close is a no-op
	f.start()
	f.enqueue(model.PlayerJoined{PlayerID: "player_2", TotalPlayers: 2})
	s.Empty(s.publisher.Events())
}

func (s *BroadcasterSuite) TestPresence_PublishErrorIgnored() {
	s.publisher.err = errors.New("redis down")
	a := s.connect("conn-a")
	b := s.connect("conn-b")
	a.Reset()
	b.Reset()

	s.broadcaster.Handle(s.ctx, model.ChatReceived{Source: "conn-a", Message: "hi"})

	s.Len(a.Events(), 1)
	s.Len(b.Events(), 1)
}

// Tracing tests

func (s *BroadcasterSuite) TestTracing_DispatchSpansCarryIdentity() {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(s.ctx) }()

	b := NewBroadcaster(s.registry, s.hub, s.clock, nil, s.metrics, tu.NopLogger(), WithTracerProvider(tp))
	b.Handle(s.ctx, model.ConnectionEstablished{Outbox: newRecordingOutbox("conn-a")})
	b.Handle(s.ctx, model.ChatReceived{Source: "conn-a", Message: "hi"})

	spans := map[string]sdktrace.ReadOnlySpan{}
	for _, span := range recorder.Ended() {
		spans[span.Name()] = span
	}
	s.Require().Contains(spans, "dispatch connection")
	s.Require().Contains(spans, "dispatch chatMessage")

	want := []attribute.KeyValue{
		attribute.String("playerhub.connection_id", "conn-a"),
		attribute.String("playerhub.player_id", "player_1"),
	}
	for _, name := range []string{"dispatch connection", "dispatch chatMessage"} {
		attrs := spans[name].Attributes()
		for _, kv := range want {
			s.Contains(attrs, kv, name)
		}
	}
	s.Contains(spans["dispatch chatMessage"].Attributes(), attribute.String("playerhub.event", "chatMessage"))
}

func (s *BroadcasterSuite) TestTracing_DuplicateConnectMarkedAsError() {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(s.ctx) }()

	b := NewBroadcaster(s.registry, s.hub, s.clock, nil, s.metrics, tu.NopLogger(), WithTracerProvider(tp))
	b.Handle(s.ctx, model.ConnectionEstablished{Outbox: newRecordingOutbox("conn-a")})
	b.Handle(s.ctx, model.ConnectionEstablished{Outbox: newRecordingOutbox("conn-a")})

	ended := recorder.Ended()
	s.Require().Len(ended, 2)
	s.Equal(codes.Error, ended[1].Status().Code)
	s.NotEmpty(ended[1].Events())
}

// Event loop tests

func (s *BroadcasterSuite) TestRun_ProcessesSubmittedEventsInOrder() {
	go s.broadcaster.Run(s.ctx)

	a := newRecordingOutbox("conn-a")
	b := newRecordingOutbox("conn-b")
	s.True(s.broadcaster.Submit(model.ConnectionEstablished{Outbox: a}))
	s.True(s.broadcaster.Submit(model.ConnectionEstablished{Outbox: b}))
	s.True(s.broadcaster.Submit(model.ChatReceived{Source: "conn-b", Message: "first"}))
	s.True(s.broadcaster.Submit(model.ConnectionClosed{Source: "conn-b"}))

	s.Require().Eventually(func() bool { return len(a.Events()) == 4 }, time.Second, 5*time.Millisecond)
	s.Equal([]model.EventType{
		model.EventWelcome,
		model.EventPlayerJoined,
		model.EventChatMessage,
		model.EventPlayerLeft,
	}, eventTypes(a.Events()))

	s.Require().NoError(s.broadcaster.Shutdown(s.ctx))
}

func (s *BroadcasterSuite) TestRun_ShutdownStopsLoop() {
	go s.broadcaster.Run(s.ctx)

	a := newRecordingOutbox("conn-a")
	s.True(s.broadcaster.Submit(model.ConnectionEstablished{Outbox: a}))

	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	s.Require().NoError(s.broadcaster.Shutdown(ctx))

	s.True(a.IsClosed())
	s.Equal(model.EventServerShutdown, a.Last().Type())
	s.False(s.broadcaster.Submit(model.ChatReceived{Source: "conn-a", Message: "too late"}))

	// Publisher saw the shutdown before Shutdown returned
	events := s.publisher.Events()
	s.Require().NotEmpty(events)
	s.Equal(model.EventServerShutdown, events[len(events)-1].Type())

	// Idempotent
	s.NoError(s.broadcaster.Shutdown(ctx))
}

func (s *BroadcasterSuite) TestRun_ContextCancelShutsDown() {
	ctx, cancel := context.WithCancel(s.ctx)
	stopped := make(chan struct{})
	go func() {
		s.broadcaster.Run(ctx)
		close(stopped)
	}()

	a := newRecordingOutbox("conn-a")
	s.True(s.broadcaster.Submit(model.ConnectionEstablished{Outbox: a}))
	s.Require().Eventually(func() bool { return len(a.Events()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		s.FailNow("loop did not stop")
	}
	s.True(a.IsClosed())
	s.False(s.broadcaster.Accepting())
	s.Equal(0, s.registry.Count())
}

func (s *BroadcasterSuite) TestShutdown_TimesOutWithoutLoop() {
	ctx, cancel := context.WithTimeout(s.ctx, 20*time.Millisecond)
	defer cancel()

	err := s.broadcaster.Shutdown(ctx)
	s.ErrorIs(err, context.DeadlineExceeded)
}

func eventTypes(events []model.OutboundEvent) []model.EventType {
	types := make([]model.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type()
	}
	return types
}
