package sink

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/streamchat/internal/domain"
)

// Frame is the only outbound WebSocket message shape.
type Frame struct {
	Content      string  `json:"content"`
	Done         bool    `json:"done"`
	ErrorMessage *string `json:"errorMessage"`
}

// FrameFor converts an event to its wire frame.
func FrameFor(ev domain.StreamEvent) Frame {
	switch ev.Kind {
	case domain.EventChunk:
		return Frame{Content: ev.Text}
	case domain.EventError:
		msg := ev.Message
		return Frame{Done: true, ErrorMessage: &msg}
	default:
		return Frame{Done: true}
	}
}

// Connection is a long-lived WebSocket shared by every turn run on it. All
// socket writes happen on WritePump.
type Connection struct {
	ID   string
	Conn *websocket.Conn

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

// NewConnection wraps ws with a send queue of the given size.
func NewConnection(ws *websocket.Conn, sendBuffer int) *Connection {
	return &Connection{
		ID:     uuid.NewString(),
		Conn:   ws,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// Send queues ev for writing. It blocks while the queue is full.
func (c *Connection) Send(ctx context.Context, ev domain.StreamEvent) error {
	data, err := json.Marshal(FrameFor(ev))
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}

	select {
	case <-c.closed:
		return domain.ErrSinkClosed
	default:
	}

	// A frame with room in the queue is accepted even after ctx is done.
	select {
	case c.send <- data:
		return nil
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return domain.ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WritePump drains the send queue onto the socket and pings the peer. It
// returns when the connection closes or a write fails.
func (c *Connection) WritePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("component", "ws").Str("conn_id", c.ID).Msg("write failed")
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = c.writeMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Connection) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// Close marks the connection closed; queued frames are dropped.
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}
