package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jwhector/yggdrasil/internal/health"
	"github.com/jwhector/yggdrasil/internal/observe"
	"github.com/jwhector/yggdrasil/internal/show"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server hosts the websocket endpoint plus the health and metrics surface.
type Server struct {
	hub     *Hub
	httpSrv *http.Server
}

// ServerConfig configures a [Server].
type ServerConfig struct {
	// ListenAddr is the TCP address to serve on (e.g. ":8080").
	ListenAddr string

	// Hub is the connection hub (required).
	Hub *Hub

	// Health is the health handler registry. Optional.
	Health *health.Handler

	// Metrics enables the HTTP middleware instruments. Optional.
	Metrics *observe.Metrics
}

// NewServer builds the HTTP server and its routes.
func NewServer(cfg ServerConfig) *Server {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(observe.Middleware(cfg.Metrics))
	}

	s := &Server{hub: cfg.Hub}

	r.Get("/ws", s.handleWS)
	r.Handle("/metrics", promhttp.Handler())
	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health.Healthz)
		r.Get("/readyz", cfg.Health.Readyz)
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the route tree, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("transport listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("transport: serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and closes the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	if cerr := s.hub.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// handleWS upgrades the connection and runs the join handshake followed by
// the read loop. Each accepted socket gets its own write goroutine.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Clients are kiosks and phones on the venue network; the origin
		// cannot be pinned ahead of time.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Debug("websocket accept failed", "err", err)
		return
	}

	// The connection outlives the HTTP handler; tie it to the hub instead.
	ctx := context.WithoutCancel(r.Context())
	c, err := s.join(ctx, conn)
	if err != nil {
		slog.Debug("join handshake failed", "err", err)
		conn.Close(websocket.StatusPolicyViolation, "join required")
		return
	}

	go c.writeLoop()
	s.afterJoin(c)
	s.readLoop(c)
}

// join performs the handshake: the first message must be join or
// reconnect_user, and it binds the socket identity.
func (s *Server) join(ctx context.Context, conn *websocket.Conn) (*client, error) {
	readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, data, err := conn.Read(readCtx)
	if err != nil {
		return nil, fmt.Errorf("read join: %w", err)
	}
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode join: %w", err)
	}

	switch msg.Type {
	case MsgJoin:
		role := msg.Mode
		if role == "" {
			role = RoleAudience
		}
		if !role.IsValid() {
			return nil, fmt.Errorf("invalid mode %q", role)
		}
		c := newClient(ctx, conn, s.hub, role)
		c.userID = msg.UserID
		if c.userID == "" {
			c.userID = show.UserID(uuid.NewString())
		}
		c.seatID = msg.SeatID
		return c, nil

	case MsgReconnectUser:
		if msg.UserID == "" {
			return nil, errors.New("reconnect without user id")
		}
		c := newClient(ctx, conn, s.hub, RoleAudience)
		c.userID = msg.UserID
		c.lastVersion = msg.LastVersion
		c.reconnect = true
		return c, nil

	default:
		return nil, fmt.Errorf("expected join, got %q", msg.Type)
	}
}

// afterJoin registers the client, confirms its identity, dispatches the
// connect command, and sends the initial full sync.
func (s *Server) afterJoin(c *client) {
	s.hub.register(c)
	c.push(ServerMessage{Type: MsgIdentity, Payload: IdentityPayload{UserID: c.userID}})

	if c.role == RoleAudience {
		cmd := show.Command{Type: show.CmdUserConnect, UserID: c.userID, Seat: c.seatID}
		if c.reconnect {
			cmd = show.Command{Type: show.CmdUserReconnect, UserID: c.userID, LastVersion: c.lastVersion}
		}
		events := s.hub.dispatcher.Dispatch(c.ctx, cmd)
		s.reportErrors(c, events)
		return
	}

	// Controller and projector sockets mutate nothing on join; they just
	// need the current picture.
	st := s.hub.dispatcher.Snapshot()
	s.hub.OnCommit(st, show.Command{}, nil)
}

// readLoop consumes client messages until the socket dies.
func (s *Server) readLoop(c *client) {
	defer s.hub.drop(c)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			slog.Debug("client read closed", "role", c.role, "user", c.userID, "err", err)
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.push(ServerMessage{Type: MsgError, Payload: ErrorMessagePayload{Message: "malformed message"}})
			continue
		}
		s.handleMessage(c, msg)
	}
}

// handleMessage translates one client message into a conductor command,
// always overriding user identity with the socket binding.
func (s *Server) handleMessage(c *client, msg ClientMessage) {
	switch msg.Type {
	case MsgPong:
		c.recordPong()

	case MsgVote:
		s.reportErrors(c, s.hub.dispatcher.Dispatch(c.ctx, show.Command{
			Type:         show.CmdSubmitVote,
			UserID:       c.userID,
			FactionVote:  msg.FactionVote,
			PersonalVote: msg.PersonalVote,
		}))

	case MsgCoupVote:
		s.reportErrors(c, s.hub.dispatcher.Dispatch(c.ctx, show.Command{
			Type:   show.CmdSubmitCoupVote,
			UserID: c.userID,
		}))

	case MsgFigTreeResponse:
		s.reportErrors(c, s.hub.dispatcher.Dispatch(c.ctx, show.Command{
			Type:   show.CmdSubmitFigTreeResponse,
			UserID: c.userID,
			Text:   msg.Text,
		}))

	case MsgCommand:
		if c.role != RoleController {
			c.push(ServerMessage{Type: MsgError, Payload: ErrorMessagePayload{
				Message: "commands require the controller role",
			}})
			return
		}
		if msg.Command == nil {
			c.push(ServerMessage{Type: MsgError, Payload: ErrorMessagePayload{
				Message: "command message without a command",
			}})
			return
		}
		cmd := *msg.Command
		if cmd.UserID != "" {
			// Identity binding applies to controllers too: a command that
			// names a user is rewritten from the socket identity.
			cmd.UserID = c.userID
		}
		s.reportErrors(c, s.hub.dispatcher.Dispatch(c.ctx, cmd))

	case MsgJoin, MsgReconnectUser:
		c.push(ServerMessage{Type: MsgError, Payload: ErrorMessagePayload{
			Message: "already joined",
		}})

	default:
		c.push(ServerMessage{Type: MsgError, Payload: ErrorMessagePayload{
			Message: fmt.Sprintf("unknown message type %q", msg.Type),
		}})
	}
}

// reportErrors relays conductor error events back to the issuing client.
func (s *Server) reportErrors(c *client, events []show.Event) {
	for _, ev := range events {
		if ev.Type != show.EvError {
			continue
		}
		if p, ok := ev.Payload.(show.ErrorPayload); ok {
			c.push(ServerMessage{Type: MsgError, Payload: ErrorMessagePayload{
				Message: p.Message,
				Command: p.Command,
			}})
		}
	}
}
