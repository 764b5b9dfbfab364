// Package app wires all Yggdrasil subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes until the context is cancelled, and Shutdown
// tears everything down in order (stop timers, stop the transport server,
// final backup, close persistence, then close the DAW bridge).
//
// For testing, inject doubles via functional options (WithBridge,
// WithStore). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jwhector/yggdrasil/internal/audioroute"
	"github.com/jwhector/yggdrasil/internal/backup"
	"github.com/jwhector/yggdrasil/internal/config"
	"github.com/jwhector/yggdrasil/internal/engine"
	"github.com/jwhector/yggdrasil/internal/health"
	"github.com/jwhector/yggdrasil/internal/observe"
	"github.com/jwhector/yggdrasil/internal/osc"
	"github.com/jwhector/yggdrasil/internal/persist"
	"github.com/jwhector/yggdrasil/internal/show"
	"github.com/jwhector/yggdrasil/internal/show/conductor"
	"github.com/jwhector/yggdrasil/internal/timing"
	"github.com/jwhector/yggdrasil/internal/transport"
)

// Clock message addresses consumed from the external musical clock. These
// are advisory to the timing engine and never persisted.
const (
	addrClockBeat  = "/clock/beat"
	addrClockTempo = "/clock/tempo"
	addrClockReady = "/clock/ready"
	addrDAWBeat    = "/live/song/get/beat"
	addrDAWTest    = "/live/test"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	metrics   *observe.Metrics
	store     *persist.Store
	bridge    osc.Bridge
	engine    *engine.Engine
	scheduler *timing.Scheduler
	backups   *backup.Manager
	hub       *transport.Hub
	server    *transport.Server
	watcher   *config.Watcher

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBridge injects a DAW bridge instead of dialling UDP from config.
func WithBridge(b osc.Bridge) Option {
	return func(a *App) { a.bridge = b }
}

// WithStore injects a persistence store instead of opening one from config.
func WithStore(s *persist.Store) Option {
	return func(a *App) { a.store = s }
}

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	a.metrics = observe.DefaultMetrics()

	// ── 1. Persistence + recovery ────────────────────────────────────────
	st, err := a.initState(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: init state: %w", err)
	}

	// ── 2. DAW bridge ────────────────────────────────────────────────────
	if err := a.initBridge(); err != nil {
		return nil, fmt.Errorf("app: init bridge: %w", err)
	}

	// ── 3. Engine + sinks ────────────────────────────────────────────────
	cond := conductor.New()
	a.engine = engine.New(st, cond, engine.WithMetrics(a.metrics))

	a.scheduler = timing.New(a.engine, timing.WithBeatClock(cfg.DAW.UseBeatClock))
	router := audioroute.New(a.bridge)

	a.hub = transport.NewHub(a.engine,
		transport.WithHeartbeat(time.Duration(cfg.Server.HeartbeatIntervalMs)*time.Millisecond, cfg.Server.HeartbeatMisses),
		transport.WithHubMetrics(a.metrics),
	)

	a.backups, err = backup.New(cfg.Backup.Dir, cfg.Backup.Prefix, a.engine,
		backup.WithMaxFiles(cfg.Backup.MaxFiles),
		backup.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init backups: %w", err)
	}

	// Sink order is the causal order of the edges: durable snapshot first,
	// then clients, then audio, then reschedule, then backup boundaries.
	a.engine.AddSink(persist.NewSink(a.store, a.metrics))
	a.engine.AddSink(engine.SinkFunc(a.hub.OnCommit))
	a.engine.AddSink(engine.SinkFunc(router.OnCommit))
	a.engine.AddSink(engine.SinkFunc(a.scheduler.OnCommit))
	a.engine.AddSink(engine.SinkFunc(a.backups.OnCommit))

	// ── 4. Clock handlers ────────────────────────────────────────────────
	a.registerClockHandlers()

	// ── 5. Transport server ──────────────────────────────────────────────
	checks := health.New(
		health.StoreProbe(a.store),
		health.BridgeProbe(func() bool { return a.bridge != nil }),
	)
	a.server = transport.NewServer(transport.ServerConfig{
		ListenAddr: cfg.Server.ListenAddr,
		Hub:        a.hub,
		Health:     checks,
		Metrics:    a.metrics,
	})

	// Recovery may have restored a mid-show phase; let the scheduler pick
	// up whatever window that phase needs.
	a.scheduler.Observe(a.engine.Snapshot())

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initState opens the store (unless injected) and loads the most recent
// snapshot, falling back to a fresh lobby state built from config.
func (a *App) initState(ctx context.Context) (*show.State, error) {
	if a.store == nil {
		store, err := persist.Open(a.cfg.Persistence.DBPath)
		if err != nil {
			return nil, err
		}
		a.store = store
	}
	a.closers = append(a.closers, a.store.Close)

	core := a.cfg.Show.Core()
	data, version, err := a.store.LoadLatest(ctx, string(core.ShowID))
	switch {
	case errors.Is(err, persist.ErrNoSnapshot):
		slog.Info("no snapshot found, starting fresh", "show", core.ShowID)
		return show.NewState(core, show.Millis(time.Now().UnixMilli())), nil
	case err != nil:
		return nil, err
	}

	st, err := show.Deserialise(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d is unreadable: %w", version, err)
	}
	slog.Info("recovered show from snapshot", "show", st.ID, "version", st.Version, "phase", st.Phase)
	return st, nil
}

// initBridge dials the UDP bridge, or installs the null bridge when the DAW
// link is disabled.
func (a *App) initBridge() error {
	if a.bridge != nil {
		a.closers = append(a.closers, a.bridge.Close)
		return nil
	}
	if !a.cfg.DAW.Enabled {
		slog.Warn("daw link disabled, using null bridge")
		a.bridge = osc.NewNull()
		return nil
	}
	b, err := osc.DialUDP(osc.UDPConfig{
		Host:     a.cfg.DAW.Host,
		SendPort: a.cfg.DAW.SendPort,
		RecvPort: a.cfg.DAW.ReceivePort,
		Metrics:  a.metrics,
	})
	if err != nil {
		return err
	}
	a.bridge = b
	a.closers = append(a.closers, b.Close)
	return nil
}

// registerClockHandlers routes external clock traffic into the scheduler.
func (a *App) registerClockHandlers() {
	onBeat := func(m osc.Message) {
		if beat, ok := m.Int(0); ok {
			a.scheduler.OnBeat(beat)
		}
	}
	a.bridge.Handle(addrClockBeat, onBeat)
	a.bridge.Handle(addrDAWBeat, onBeat)
	a.bridge.Handle(addrClockTempo, func(m osc.Message) {
		if bpm, ok := m.Float(0); ok {
			a.scheduler.OnTempo(bpm)
		}
	})
	a.bridge.HandleOnce(addrClockReady, func(osc.Message) {
		slog.Info("external clock ready")
	})
	a.bridge.Handle(addrDAWTest, func(osc.Message) {
		slog.Debug("daw ack probe received")
	})

	// Sanity-check the session layout: the reply to the track-count request
	// arrives on the same address.
	expected := len(a.cfg.Show.Rows) * show.OptionsPerRow
	a.bridge.HandleOnce(audioroute.AddrSongGetNumTracks, func(m osc.Message) {
		if n, ok := m.Int(0); ok && n < expected {
			slog.Warn("daw session has fewer tracks than the show needs", "have", n, "need", expected)
		} else if ok {
			slog.Info("daw session verified", "tracks", n)
		}
	})
	if err := a.bridge.Send(osc.NewMessage(audioroute.AddrSongGetNumTracks)); err != nil {
		slog.Debug("track count probe failed", "err", err)
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Engine returns the command serialiser.
func (a *App) Engine() *engine.Engine { return a.engine }

// Bridge returns the DAW bridge.
func (a *App) Bridge() osc.Bridge { return a.bridge }

// Backups returns the backup manager.
func (a *App) Backups() *backup.Manager { return a.backups }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	// Hot-reload of timing overrides: an edited show file re-times the
	// running show without a restart.
	if path := a.cfg.Show.SourcePath; path != "" {
		w, err := config.WatchTiming(path, a.applyTiming)
		if err != nil {
			slog.Warn("timing watcher unavailable", "err", err)
		} else {
			a.watcher = w
		}
	}

	if interval := time.Duration(a.cfg.Backup.IntervalMs) * time.Millisecond; interval > 0 {
		go a.backups.RunPeriodic(ctx, interval)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start() }()

	slog.Info("show core running", "show", a.cfg.Show.ID, "rows", len(a.cfg.Show.Rows))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// applyTiming forwards edited timing values into the running show as a
// SET_TIMING command; the timing engine picks them up on its next window.
func (a *App) applyTiming(t config.TimingConfig) {
	override := show.TimingOverride{
		AuditionPerOptionMs:         &t.AuditionPerOptionMs,
		AuditionLoopsPerRow:         &t.AuditionLoopsPerRow,
		VotingWindowMs:              &t.VotingWindowMs,
		RevealDurationMs:            &t.RevealDurationMs,
		CoupWindowMs:                &t.CoupWindowMs,
		MasterLoopBeats:             &t.MasterLoopBeats,
		AcceptVotesWhileAuditioning: &t.AcceptVotesWhileAuditioning,
	}
	a.engine.Dispatch(context.Background(), show.Command{Type: show.CmdSetTiming, Timing: &override})
	slog.Info("timing overrides applied from show file")
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears everything down in order: timers, transport, final backup,
// then the closers (persistence first, then the bridge). It respects the context deadline: if ctx
// expires, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.watcher != nil {
			a.watcher.Stop()
		}
		a.scheduler.Stop()
		a.backups.Stop()

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("transport shutdown error", "err", err)
		}

		if err := a.backups.Write(ctx, "shutdown"); err != nil {
			slog.Warn("final backup failed", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
