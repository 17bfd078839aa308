package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/dyluth/rota/internal/hub"
	"github.com/dyluth/rota/pkg/booking"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection is one client session.
type Connection struct {
	id    string
	conn  *websocket.Conn
	hub   *hub.Hub
	state atomic.Int32

	// Frames addressed to this client only (update_failed).
	replies    chan *booking.Envelope
	writerDone chan struct{}
}

func newConnection(conn *websocket.Conn, h *hub.Hub) *Connection {
	return &Connection{
		id:         uuid.New().String(),
		conn:       conn,
		hub:        h,
		replies:    make(chan *booking.Envelope, 4),
		writerDone: make(chan struct{}),
	}
}

func (c *Connection) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	log.Printf("[Gateway] Connection %s: %s -> %s", c.id, prev, s)
}

// run drives the connection through its lifecycle and returns once it is Disconnected.
func (c *Connection) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer c.conn.Close()

	c.setState(StateConnected)

	sub, snapshot, err := c.hub.Join(ctx)
	if err != nil {
		log.Printf("[Gateway] Connection %s: failed to join hub: %v", c.id, err)
		c.writeClose(websocket.CloseInternalServerErr, "bookings unavailable")
		c.setState(StateDisconnected)
		return
	}

	if err := c.writeMap(snapshot); err != nil {
		log.Printf("[Gateway] Connection %s: failed to send snapshot: %v", c.id, err)
		sub.Close()
		c.setState(StateDisconnected)
		return
	}

	c.setState(StateActive)
	go c.writePump(sub)

	c.readPump(ctx)

	c.setState(StateDisconnected)
	sub.Close()
	<-c.writerDone
}

// readPump forwards client frames to the hub until the connection fails.
func (c *Connection) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("[Gateway] Connection %s closed unexpectedly: %v", c.id, err)
			}
			return
		}

		var env booking.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("[Gateway] Connection %s: ignoring malformed frame: %v", c.id, err)
			continue
		}

		switch env.Event {
		case booking.EventUpdateBookings:
			c.handleUpdate(ctx, &env)
		default:
			log.Printf("[Gateway] Connection %s: ignoring unknown event %q", c.id, env.Event)
		}
	}
}

func (c *Connection) handleUpdate(ctx context.Context, env *booking.Envelope) {
	m, err := env.DecodeMap()
	if err == nil {
		err = c.hub.ApplyUpdate(ctx, m)
	}
	if err == nil {
		return
	}

	log.Printf("[Gateway] Connection %s: update rejected: %v", c.id, err)
	if errors.Is(err, context.Canceled) {
		return
	}

	reply, mErr := booking.NewEnvelope(booking.EventUpdateFailed, booking.UpdateFailure{Error: err.Error()})
	if mErr != nil {
		log.Printf("[Gateway] Connection %s: %v", c.id, mErr)
		return
	}
	select {
	case c.replies <- reply:
	case <-c.writerDone:
	}
}

// writePump is the only goroutine writing to the socket once the connection is active.
func (c *Connection) writePump(sub *hub.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// Unblocks readPump if we stopped first.
		c.conn.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case m, ok := <-sub.Events():
			if !ok {
				// Evicted as a slow observer, or the hub is shutting down.
				c.writeClose(websocket.CloseGoingAway, "")
				return
			}
			if err := c.writeMap(m); err != nil {
				log.Printf("[Gateway] Connection %s: failed to relay broadcast: %v", c.id, err)
				return
			}

		case reply := <-c.replies:
			if err := c.writeEnvelope(reply); err != nil {
				log.Printf("[Gateway] Connection %s: failed to send reply: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) writeMap(m booking.Map) error {
	env, err := booking.NewEnvelope(booking.EventBookingsUpdated, m)
	if err != nil {
		return err
	}
	return c.writeEnvelope(env)
}

func (c *Connection) writeEnvelope(env *booking.Envelope) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(env)
}

func (c *Connection) writeClose(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
