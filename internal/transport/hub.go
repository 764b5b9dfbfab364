package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jwhector/yggdrasil/internal/observe"
	"github.com/jwhector/yggdrasil/internal/show"
	"github.com/jwhector/yggdrasil/internal/show/projection"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// Dispatcher is the slice of the engine the hub needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd show.Command) []show.Event
	Snapshot() *show.State
}

// Defaults for heartbeat supervision.
const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultHeartbeatMisses   = 2
)

// broadcastJob carries one committed state to the broadcast worker.
type broadcastJob struct {
	st     *show.State
	events []show.Event
}

// Hub owns every live connection. It registers clients by role, maintains
// per-faction rooms, supervises heartbeats, and fans the role projections
// out after every accepted command.
type Hub struct {
	dispatcher Dispatcher
	metrics    *observe.Metrics

	heartbeatInterval time.Duration
	heartbeatMisses   int

	mu      sync.Mutex
	clients map[*client]struct{}
	rooms   map[show.FactionID]map[*client]struct{}

	jobs     chan broadcastJob
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithHeartbeat overrides the ping interval and the miss budget.
func WithHeartbeat(interval time.Duration, misses int) HubOption {
	return func(h *Hub) {
		if interval > 0 {
			h.heartbeatInterval = interval
		}
		if misses > 0 {
			h.heartbeatMisses = misses
		}
	}
}

// WithHubMetrics records transport metrics on the given instruments.
func WithHubMetrics(m *observe.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// NewHub creates the hub and starts its broadcast worker and heartbeat
// supervisor.
func NewHub(d Dispatcher, opts ...HubOption) *Hub {
	h := &Hub{
		dispatcher:        d,
		heartbeatInterval: DefaultHeartbeatInterval,
		heartbeatMisses:   DefaultHeartbeatMisses,
		clients:           map[*client]struct{}{},
		rooms:             map[show.FactionID]map[*client]struct{}{},
		jobs:              make(chan broadcastJob, 64),
		done:              make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	h.wg.Add(2)
	go h.broadcastWorker()
	go h.heartbeatLoop()
	return h
}

// Close drops every client and stops the worker goroutines.
func (h *Hub) Close() error {
	h.stopOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		for c := range h.clients {
			c.cancel()
			c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		h.clients = map[*client]struct{}{}
		h.rooms = map[show.FactionID]map[*client]struct{}{}
		h.mu.Unlock()
	})
	h.wg.Wait()
	return nil
}

// OnCommit implements the engine sink contract. It only hands the snapshot
// to the broadcast worker; all marshalling and socket traffic happens off
// the command path.
func (h *Hub) OnCommit(st *show.State, cmd show.Command, events []show.Event) {
	select {
	case h.jobs <- broadcastJob{st: st, events: events}:
	case <-h.done:
	}
}

// broadcastWorker serialises fan-outs so every client sees commits in
// version order.
func (h *Hub) broadcastWorker() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case job := <-h.jobs:
			h.broadcast(job)
		}
	}
}

// broadcast sends one filtered state_sync to every connected client, plus
// the secondary per-event actions (room membership, forced reconnects).
func (h *Hub) broadcast(job broadcastJob) {
	start := time.Now()
	st := job.st

	h.refreshRooms(st)

	// Shared projections are marshalled once; audience views are per-user.
	controllerView := encode(ServerMessage{Type: MsgStateSync, Payload: projection.ForController(st)})
	projectorView := encode(ServerMessage{Type: MsgStateSync, Payload: projection.ForProjector(st)})

	forceReconnect := false
	for _, ev := range job.events {
		if ev.Type == show.EvForceReconnect {
			forceReconnect = true
		}
	}

	var g errgroup.Group
	for _, c := range h.snapshotClients() {
		g.Go(func() error {
			switch c.role {
			case RoleController:
				c.enqueue(controllerView)
			case RoleProjector:
				c.enqueue(projectorView)
			case RoleAudience:
				view := projection.ForAudience(st, c.userID)
				data, err := json.Marshal(ServerMessage{Type: MsgStateSync, Payload: view})
				if err != nil {
					return err
				}
				c.enqueue(data)
			}
			if forceReconnect {
				c.push(ServerMessage{Type: MsgForceReconnect})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("broadcast marshal failed", "err", err)
	}

	if h.metrics != nil {
		h.metrics.BroadcastDuration.Record(context.Background(), time.Since(start).Seconds())
	}
}

// refreshRooms reconciles per-faction room membership with the committed
// state. Joining a room is the secondary action behind FACTION_ASSIGNED.
func (h *Hub) refreshRooms(st *show.State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rooms = map[show.FactionID]map[*client]struct{}{}
	for c := range h.clients {
		if c.role != RoleAudience || c.userID == "" {
			continue
		}
		u := st.Users[c.userID]
		if u == nil || u.Faction == nil {
			continue
		}
		c.mu.Lock()
		joined := c.faction == nil || *c.faction != *u.Faction
		f := *u.Faction
		c.faction = &f
		c.mu.Unlock()
		if joined {
			slog.Debug("client joined faction room", "user", c.userID, "faction", f)
		}
		room := h.rooms[f]
		if room == nil {
			room = map[*client]struct{}{}
			h.rooms[f] = room
		}
		room[c] = struct{}{}
	}
}

// RoomSizes reports room occupancy by faction. The controller UI shows it
// as a connectivity readout; tests use it to assert room membership.
func (h *Hub) RoomSizes() map[show.FactionID]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[show.FactionID]int, len(h.rooms))
	for f, room := range h.rooms {
		out[f] = len(room)
	}
	return out
}

// heartbeatLoop pings every client on the interval and synthesises a
// disconnect for any that misses its pong budget.
func (h *Hub) heartbeatLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	ping := encode(ServerMessage{Type: MsgPing})
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			for _, c := range h.snapshotClients() {
				if c.misses() > h.heartbeatMisses {
					slog.Info("heartbeat lapsed, dropping client", "role", c.role, "user", c.userID)
					h.drop(c)
					continue
				}
				c.enqueue(ping)
			}
		}
	}
}

// register adds a fully joined client.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ConnectedClients.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("role", string(c.role))))
	}
}

// drop removes a client and synthesises the USER_DISCONNECT command for
// audience sockets. Idempotent.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	for _, room := range h.rooms {
		delete(room, c)
	}
	h.mu.Unlock()
	if !present {
		return
	}

	c.cancel()
	c.conn.Close(websocket.StatusNormalClosure, "dropped")
	if h.metrics != nil {
		h.metrics.ConnectedClients.Add(context.Background(), -1,
			metric.WithAttributes(attribute.String("role", string(c.role))))
		h.metrics.TransportErrors.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("role", string(c.role))))
	}

	if c.role == RoleAudience && c.userID != "" {
		// Asynchronous: drop may be called from the broadcast worker, and
		// dispatching inline from there would feed back into its own queue.
		go h.dispatcher.Dispatch(context.Background(), show.Command{
			Type:   show.CmdUserDisconnect,
			UserID: c.userID,
		})
	}
}

// snapshotClients copies the client set so iteration never holds the lock
// across socket work.
func (h *Hub) snapshotClients() []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}
