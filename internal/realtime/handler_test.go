package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/playerhub/internal/dependencies/mocks"
	"github.com/mcoot/playerhub/internal/metrics"
	"github.com/mcoot/playerhub/internal/model"
	"github.com/mcoot/playerhub/internal/protocol"
	"github.com/mcoot/playerhub/internal/services/session"
	tu "github.com/mcoot/playerhub/internal/testutil"
)

type wsEnv struct {
	clock       *mocks.MockClock
	registry    *session.Registry
	broadcaster *Broadcaster
	server      *httptest.Server
	url         string
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()
	logger := tu.NopLogger()
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	m := metrics.Nop()
	registry := session.New(clk, logger)
	broadcaster := NewBroadcaster(registry, NewHub(m, logger), clk, nil, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go broadcaster.Run(ctx)

	server := httptest.NewServer(NewHandler(broadcaster, mocks.NewMockIDs(), logger))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})

	return &wsEnv{
		clock:       clk,
		registry:    registry,
		broadcaster: broadcaster,
		server:      server,
		url:         "ws" + strings.TrimPrefix(server.URL, "http"),
	}
}

func (e *wsEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) model.OutboundEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	event, err := protocol.DecodeOutbound(data)
	require.NoError(t, err)
	return event
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame []byte) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func TestHandler_SessionLifecycle(t *testing.T) {
	env := newWSEnv(t)

	a := env.dial(t)
	assert.Equal(t, model.Welcome{
		PlayerID:     "player_1",
		Message:      "Welcome to the game, player_1!",
		TotalPlayers: 1,
	}, readEvent(t, a))

	b := env.dial(t)
	assert.Equal(t, model.Welcome{
		PlayerID:     "player_2",
		Message:      "Welcome to the game, player_2!",
		TotalPlayers: 2,
	}, readEvent(t, b))
	assert.Equal(t, model.PlayerJoined{PlayerID: "player_2", TotalPlayers: 2}, readEvent(t, a))

	// Greeting is acknowledged to the sender only
	greeting, err := protocol.EncodeGreeting("hello", env.clock.Now())
	require.NoError(t, err)
	writeFrame(t, b, greeting)

	ack, ok := readEvent(t, b).(model.GreetingAck)
	require.True(t, ok)
	assert.Equal(t, "Greeting received", ack.Message)
	assert.Equal(t, model.PlayerID("player_2"), ack.PlayerID)
	assert.True(t, env.clock.Now().Equal(ack.Timestamp))
	assert.JSONEq(t, `{"message":"hello","timestamp":"2024-01-01T12:00:00.000Z"}`, string(ack.OriginalPayload))

	// Malformed frames are dropped without closing the connection
	writeFrame(t, b, []byte("not json"))
	writeFrame(t, b, []byte(`{"event":"teleport","data":{}}`))

	chat, err := protocol.EncodeChat("hi everyone")
	require.NoError(t, err)
	writeFrame(t, b, chat)

	for _, conn := range []*websocket.Conn{a, b} {
		msg, ok := readEvent(t, conn).(model.ChatMessage)
		require.True(t, ok)
		assert.Equal(t, model.PlayerID("player_2"), msg.PlayerID)
		assert.Equal(t, "hi everyone", msg.Message)
	}

	// B leaves
	require.NoError(t, b.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Equal(t, model.PlayerLeft{PlayerID: "player_2", TotalPlayers: 1}, readEvent(t, a))

	require.Eventually(t, func() bool { return env.registry.Count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHandler_ShutdownClosesConnections(t *testing.T) {
	env := newWSEnv(t)

	a := env.dial(t)
	readEvent(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.broadcaster.Shutdown(ctx))

	shutdown, ok := readEvent(t, a).(model.ServerShutdown)
	require.True(t, ok)
	assert.Equal(t, "Server is shutting down", shutdown.Message)

	// Followed by a close frame
	_, _, err := a.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	assert.Equal(t, 0, env.registry.Count())

	// New connections are refused
	_, resp, err := websocket.DefaultDialer.Dial(env.url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandler_RejectsPlainHTTP(t *testing.T) {
	env := newWSEnv(t)

	resp, err := http.Get(env.server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, env.registry.Count())
}

func TestClient_SendAfterCloseFails(t *testing.T) {
	env := newWSEnv(t)
	a := env.dial(t)
	readEvent(t, a)

	// Pull the server side client out of the hub
	outbox := firstOutbox(t, env.broadcaster.hub)
	require.NoError(t, outbox.Close())
	require.NoError(t, outbox.Close())

	assert.ErrorIs(t, outbox.Send(model.PlayerLeft{PlayerID: "player_9"}), model.ErrConnectionClosed)
}

func firstOutbox(t *testing.T, h *Hub) model.Outbox {
	t.Helper()
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, o := range h.outboxes {
		return o
	}
	t.Fatal("hub is empty")
	return nil
}
