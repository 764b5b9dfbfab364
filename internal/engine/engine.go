// Package engine hosts the command serialiser: the single writer through
// which every state mutation funnels.
//
// The transport fabric, timing engine, and controller are concurrent
// producers of commands; Dispatch linearises them ("first to arrive wins"),
// runs the conductor, and only then notifies the registered sinks —
// persistence, broadcast, audio, timing — with an immutable state clone and
// the event batch. Sinks that perform real I/O are expected to enqueue and
// return quickly; none of their results flow back into the state machine.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jwhector/yggdrasil/internal/observe"
	"github.com/jwhector/yggdrasil/internal/show"
	"github.com/jwhector/yggdrasil/internal/show/conductor"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Sink observes accepted commands. OnCommit receives a deep clone of the
// post-command state, the command, and the events it produced; the clone is
// the sink's to keep.
type Sink interface {
	OnCommit(st *show.State, cmd show.Command, events []show.Event)
}

// SinkFunc adapts a function to the [Sink] interface.
type SinkFunc func(st *show.State, cmd show.Command, events []show.Event)

// OnCommit calls f.
func (f SinkFunc) OnCommit(st *show.State, cmd show.Command, events []show.Event) {
	f(st, cmd, events)
}

// Engine owns the authoritative show state.
type Engine struct {
	mu    sync.Mutex
	state *show.State
	cond  *conductor.Conductor
	sinks []Sink

	metrics *observe.Metrics
	now     func() time.Time
}

// Option configures an [Engine].
type Option func(*Engine)

// WithMetrics records command metrics on the given instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine owning st.
func New(st *show.State, cond *conductor.Conductor, opts ...Option) *Engine {
	e := &Engine{
		state: st,
		cond:  cond,
		now:   time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// AddSink registers a commit observer. Sinks are notified in registration
// order: persistence before broadcast before audio before timing, as wired
// by the app.
func (e *Engine) AddSink(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

// Dispatch runs one command through the conductor. It returns the events
// the command produced; for rejected commands that is the error batch and
// the state is untouched.
func (e *Engine) Dispatch(ctx context.Context, cmd show.Command) []show.Event {
	start := e.now()
	cmd.At = show.Millis(start.UnixMilli())

	e.mu.Lock()
	before := e.state.Version
	events := e.cond.Process(e.state, cmd)
	accepted := e.state.Version != before

	// Sinks are notified under the serialiser lock so that no sink ever
	// observes commits out of version order. Sinks enqueue their real work;
	// nothing here waits on a socket or the DAW.
	if accepted {
		snap := e.state.Clone()
		for _, s := range e.sinks {
			s.OnCommit(snap, cmd, events)
		}
	}
	e.mu.Unlock()

	if !accepted && len(events) > 0 {
		slog.Debug("command rejected", "type", cmd.Type, "events", len(events))
	}

	if e.metrics != nil {
		status := "accepted"
		if !accepted {
			status = "rejected"
		}
		attrs := metric.WithAttributes(
			attribute.String("command", string(cmd.Type)),
			attribute.String("status", status),
		)
		e.metrics.CommandsProcessed.Add(ctx, 1, attrs)
		e.metrics.CommandDuration.Record(ctx, e.now().Sub(start).Seconds(), attrs)
	}
	return events
}

// Snapshot returns a deep clone of the current state for read-only use.
func (e *Engine) Snapshot() *show.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Version returns the current state version.
func (e *Engine) Version() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Version
}
