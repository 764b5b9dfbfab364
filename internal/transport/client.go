package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/jwhector/yggdrasil/internal/show"
)

// sendBufferSize bounds the per-client outbound queue. A client that can't
// drain a full state sync backlog this deep is effectively gone and gets
// dropped rather than back-pressuring the broadcast.
const sendBufferSize = 16

// client is one websocket connection with its socket-bound identity.
type client struct {
	conn *websocket.Conn
	hub  *Hub
	role Role

	// userID is bound at join time and overrides any user field in later
	// messages from this socket.
	userID show.UserID

	// seatID is the seat claimed at join, if any.
	seatID show.SeatID

	// reconnect marks a handshake that presented a prior identity.
	reconnect bool

	mu          sync.Mutex
	faction     *show.FactionID
	missedPongs int
	lastVersion int
	closed      bool

	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(ctx context.Context, conn *websocket.Conn, hub *Hub, role Role) *client {
	cctx, cancel := context.WithCancel(ctx)
	return &client{
		conn:   conn,
		hub:    hub,
		role:   role,
		send:   make(chan []byte, sendBufferSize),
		ctx:    cctx,
		cancel: cancel,
	}
}

// enqueue queues data for delivery. A full queue means the client is stuck;
// it is dropped per the transport error model and will reconnect.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		slog.Warn("client send queue full, dropping connection", "role", c.role, "user", c.userID)
		c.hub.drop(c)
		return false
	}
}

// push is enqueue for a typed message.
func (c *client) push(m ServerMessage) bool {
	return c.enqueue(encode(m))
}

// writeLoop drains the send queue onto the socket. Messages leave in the
// order they were enqueued, which preserves the per-client ordering
// guarantee.
func (c *client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(c.ctx, websocket.MessageText, data); err != nil {
				slog.Debug("client write failed", "role", c.role, "user", c.userID, "err", err)
				c.hub.drop(c)
				return
			}
		}
	}
}

// recordPong resets the heartbeat miss counter.
func (c *client) recordPong() {
	c.mu.Lock()
	c.missedPongs = 0
	c.mu.Unlock()
}

// misses increments and returns the heartbeat miss counter.
func (c *client) misses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missedPongs++
	return c.missedPongs
}
