package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection roles. A connection starts with no role; end-users implicitly
// become RoleEndUser on session_init, administrators declare themselves
// with admin_identify.
const (
	RoleNone    = ""
	RoleEndUser = "end_user"
	RoleAdmin   = "admin"
)

// Connection wraps a websocket connection with a serialized writer.
// Gorilla connections allow a single concurrent writer, so all outbound
// frames funnel through one goroutine via a buffered channel.
type Connection struct {
	id        string
	conn      *websocket.Conn
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu   sync.RWMutex
	role string
}

// NewConnection wraps an upgraded websocket connection and starts its
// write loop.
func NewConnection(conn *websocket.Conn, bufferSize int) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      uuid.New().String(),
		conn:    conn,
		writeCh: make(chan []byte, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the sole writer. The channel is never closed; senders are
// fenced off by the connection context instead, so a racing Send can
// never hit a closed channel. The context is cancelled on exit, so once a
// write fails every later Send fails fast instead of waiting out the
// enqueue timeout.
func (c *Connection) writeLoop() {
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the connection's server-assigned identifier.
func (c *Connection) ID() string {
	return c.id
}

// SetRole records the connection's role after identification.
func (c *Connection) SetRole(role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
}

// Role returns the connection's current role.
func (c *Connection) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// Send frames an event and queues it for delivery. Sending to a closed
// connection returns ErrConnectionClosed; room fan-out treats that as a
// no-op.
func (c *Connection) Send(event string, data any) error {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return ErrInvalidJSON
		}
		env.Data = raw
	}
	return c.WriteJSON(env)
}

// SendAck replies to an acknowledged inbound event, echoing its id.
func (c *Connection) SendAck(id string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.WriteJSON(Envelope{Event: EventAck, ID: id, Data: raw})
}

// WriteJSON marshals v and queues it on the write channel.
func (c *Connection) WriteJSON(v any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close cancels the write loop and closes the underlying connection.
// Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done exposes the connection's lifetime for goroutines tied to it.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}
