package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/playerhub/internal/model"
	"github.com/mcoot/playerhub/internal/protocol"
)

const sessionWriteWait = 10 * time.Second

// ErrSessionClosed is returned by Next once the server has closed the connection
var ErrSessionClosed = errors.New("session closed")

// Status values reported by Session.Status
const (
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// Session is a client connection to the session server. It keeps only
// transient state: a status line and the identity the server assigned.
type Session struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	status   string
	playerID model.PlayerID

	incoming  chan incoming
	done      chan struct{}
	closeOnce sync.Once
}

type incoming struct {
	event model.OutboundEvent
	err   error
}

// Dial connects to the WebSocket endpoint and starts reading events
func Dial(ctx context.Context, wsURL string) (*Session, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusServiceUnavailable {
			return nil, fmt.Errorf("server is shutting down: %w", err)
		}
		return nil, fmt.Errorf("connect %s: %w", wsURL, err)
	}

	s := &Session{
		conn:     conn,
		status:   StatusConnecting,
		incoming: make(chan incoming, 16),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *Session) readLoop() {
	defer close(s.incoming)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.setStatus(StatusDisconnected)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = ErrSessionClosed
			}
			s.push(incoming{err: err})
			return
		}

		event, err := protocol.DecodeOutbound(data)
		if err != nil {
			// Unknown frames from a newer server are skipped
			continue
		}
		s.observe(event)
		if !s.push(incoming{event: event}) {
			return
		}
	}
}

func (s *Session) push(in incoming) bool {
	select {
	case s.incoming <- in:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) observe(event model.OutboundEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := event.(model.Welcome); ok {
		s.playerID = w.PlayerID
		s.status = StatusConnected
	}
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Status returns the current connection status text
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// PlayerID returns the identity from the welcome event, empty until then
func (s *Session) PlayerID() model.PlayerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

// Greet sends the hello the server expects right after connecting
func (s *Session) Greet(message string, at time.Time) error {
	frame, err := protocol.EncodeGreeting(message, at)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, frame)
}

// Chat sends a chat line
func (s *Session) Chat(message string) error {
	frame, err := protocol.EncodeChat(message)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, frame)
}

func (s *Session) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(sessionWriteWait))
	return s.conn.WriteMessage(messageType, data)
}

// Next blocks until the next server event arrives.
// Returns ErrSessionClosed once the server has closed the connection.
func (s *Session) Next(ctx context.Context) (model.OutboundEvent, error) {
	select {
	case in, ok := <-s.incoming:
		if !ok {
			return nil, ErrSessionClosed
		}
		return in.event, in.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitFor reads events until match returns true, returning every event seen
func (s *Session) WaitFor(ctx context.Context, match func(model.OutboundEvent) bool) ([]model.OutboundEvent, error) {
	var seen []model.OutboundEvent
	for {
		event, err := s.Next(ctx)
		if err != nil {
			return seen, err
		}
		seen = append(seen, event)
		if match(event) {
			return seen, nil
		}
	}
}

// Close says goodbye with a close frame and drops the connection. Only the
// first call does any work.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.setStatus(StatusDisconnected)
		_ = s.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
	})
	return err
}
