package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/playerhub/internal/model"
	"github.com/mcoot/playerhub/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256

	// closeWait bounds how long Close waits for the write pump to flush
	closeWait = writeWait + time.Second
)

// Client is a WebSocket connection. It implements model.Outbox.
type Client struct {
	id        model.ConnectionID
	ws        *websocket.Conn
	submitter Submitter
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
	send   chan model.OutboundEvent

	// done is closed when the write pump has exited and the socket is closed
	done chan struct{}
}

var _ model.Outbox = (*Client)(nil)

func newClient(id model.ConnectionID, ws *websocket.Conn, submitter Submitter, logger *slog.Logger) *Client {
	return &Client{
		id:        id,
		ws:        ws,
		submitter: submitter,
		logger:    logger.With(slog.String("connection_id", string(id))),
		send:      make(chan model.OutboundEvent, sendBufferSize),
		done:      make(chan struct{}),
	}
}

// ID returns the connection id
func (c *Client) ID() model.ConnectionID { return c.id }

// Send queues an event for the write pump without blocking
func (c *Client) Send(event model.OutboundEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.ErrConnectionClosed
	}
	select {
	case c.send <- event:
		return nil
	default:
		return model.ErrSendBufferFull
	}
}

// Close flushes queued events, sends a close frame and waits for the socket
// to be closed. Safe to call more than once.
func (c *Client) Close() error {
	c.closeSend()

	select {
	case <-c.done:
		return nil
	case <-time.After(closeWait):
		return c.ws.Close()
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.submitter.Submit(model.ConnectionClosed{Source: c.id, Outbox: c})
		c.closeSend()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.submitter.Submit(model.TransportError{Source: c.id, Err: err})
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame", slog.Int("type", messageType))
			continue
		}

		event, err := protocol.Decode(data, c.id)
		if err != nil {
			c.logger.Warn("dropping malformed frame",
				slog.Any("error", err),
				slog.Int("size", len(data)))
			continue
		}
		c.submitter.Submit(event)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			frame, err := protocol.Encode(event)
			if err != nil {
				c.logger.Error("encode outbound event",
					slog.String("event", string(event.Type())),
					slog.Any("error", err))
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
