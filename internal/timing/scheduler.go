// Package timing advances show phases without operator intervention: a
// hybrid scheduler that drives voting, reveal, and coup windows from
// wall-clock timers and — when the external musical clock is enabled —
// drives auditions from DAW beat events instead.
//
// Every scheduled timer carries the state version it was scheduled under.
// A fired timer whose version no longer matches the live state is dropped:
// a manual command superseded it. Pausing cancels everything; resuming
// re-observes the state and reschedules whatever the current phase needs.
package timing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jwhector/yggdrasil/internal/show"
)

// Dispatcher injects commands into the serialiser. Implemented by the
// engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd show.Command) []show.Event
	Version() int
}

// Scheduler is the hybrid timing engine. It observes the authoritative
// state after every command (as an engine sink) and keeps at most one
// pending timer.
type Scheduler struct {
	dispatcher Dispatcher

	// useBeatClock switches auditions from wall-clock timers to external
	// beat counting.
	useBeatClock bool

	mu           sync.Mutex
	timer        *time.Timer
	timerVersion int

	// Beat-mode bookkeeping: armed while an audition step waits on beats.
	beatArmed   bool
	beatVersion int
	beatStart   *int
	beatTarget  int

	stopped bool
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithBeatClock enables external-clock mode for auditions.
func WithBeatClock(enabled bool) Option {
	return func(s *Scheduler) { s.useBeatClock = enabled }
}

// New creates a Scheduler dispatching through d.
func New(d Dispatcher, opts ...Option) *Scheduler {
	s := &Scheduler{dispatcher: d}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnCommit implements the engine sink contract: cancel whatever was
// pending and schedule for the new state.
func (s *Scheduler) OnCommit(st *show.State, cmd show.Command, events []show.Event) {
	s.Observe(st)
}

// Observe cancels the pending schedule and arms the one the state needs.
// Also called once at start-up after recovery, and on resume.
func (s *Scheduler) Observe(st *show.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	if s.stopped {
		return
	}

	if st.Phase != show.PhaseRunning {
		return
	}
	row := st.CurrentRow()
	if row == nil {
		return
	}

	t := st.Config.Timing
	switch row.Phase {
	case show.RowAuditioning:
		if s.useBeatClock && t.MasterLoopBeats > 0 {
			s.beatArmed = true
			s.beatVersion = st.Version
			s.beatStart = nil
			s.beatTarget = t.MasterLoopBeats
			return
		}
		s.armLocked(st.Version, time.Duration(t.AuditionPerOptionMs)*time.Millisecond)
	case show.RowVoting:
		s.armLocked(st.Version, time.Duration(t.VotingWindowMs)*time.Millisecond)
	case show.RowRevealing:
		s.armLocked(st.Version, time.Duration(t.RevealDurationMs)*time.Millisecond)
	case show.RowCoupWindow:
		s.armLocked(st.Version, time.Duration(t.CoupWindowMs)*time.Millisecond)
	default:
		// pending and committed rows wait on the operator.
	}
}

// armLocked schedules an ADVANCE_PHASE after d, keyed to version.
func (s *Scheduler) armLocked(version int, d time.Duration) {
	if d <= 0 {
		return
	}
	s.timerVersion = version
	s.timer = time.AfterFunc(d, func() {
		s.fire(version)
	})
}

// fire delivers a timer expiry. The version guard drops timers that a
// manual command has superseded.
func (s *Scheduler) fire(version int) {
	s.mu.Lock()
	if s.stopped || version != s.timerVersion {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	if s.dispatcher.Version() != version {
		slog.Debug("dropping stale timer", "scheduled_version", version)
		return
	}
	s.dispatcher.Dispatch(context.Background(), show.Command{Type: show.CmdAdvancePhase})
}

// OnBeat consumes one external clock tick (/clock/beat or the DAW beat
// counter). Beats are advisory and never persisted.
func (s *Scheduler) OnBeat(beat int) {
	s.mu.Lock()
	if s.stopped || !s.beatArmed {
		s.mu.Unlock()
		return
	}
	if s.beatStart == nil {
		b := beat
		s.beatStart = &b
		s.mu.Unlock()
		return
	}
	elapsed := beat - *s.beatStart
	if elapsed < s.beatTarget {
		s.mu.Unlock()
		return
	}
	version := s.beatVersion
	s.beatArmed = false
	s.beatStart = nil
	s.mu.Unlock()

	if s.dispatcher.Version() != version {
		slog.Debug("dropping stale beat window", "scheduled_version", version)
		return
	}
	s.dispatcher.Dispatch(context.Background(), show.Command{Type: show.CmdAdvancePhase})
}

// OnTempo consumes a tempo report. Currently informational.
func (s *Scheduler) OnTempo(bpm float64) {
	slog.Debug("external clock tempo", "bpm", bpm)
}

// cancelLocked drops the pending timer and disarms beat counting.
func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerVersion = -1
	s.beatArmed = false
	s.beatStart = nil
}

// Stop cancels everything permanently. Called during shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.cancelLocked()
}
