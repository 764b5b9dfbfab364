package persist

import (
	"context"
	"log/slog"
	"time"

	"github.com/jwhector/yggdrasil/internal/observe"
	"github.com/jwhector/yggdrasil/internal/show"
)

// Sink snapshots the state after every accepted command. It is registered
// first on the engine so a crash after any later sink still recovers to the
// committed state.
//
// Snapshot writes run behind a writeGuard: a dying disk degrades to logged
// skips instead of stalling the command path. Per the error model, a
// failed write never un-accepts a command — the state is already mutated
// in memory, and the operator can export a backup once the store recovers.
type Sink struct {
	store   *Store
	guard   *writeGuard
	metrics *observe.Metrics
	now     func() time.Time
}

// NewSink creates the persistence sink.
func NewSink(store *Store, metrics *observe.Metrics) *Sink {
	return &Sink{
		store:   store,
		guard:   newWriteGuard(3, 10*time.Second),
		metrics: metrics,
		now:     time.Now,
	}
}

// OnCommit implements the engine sink contract.
func (s *Sink) OnCommit(st *show.State, cmd show.Command, events []show.Event) {
	ctx := context.Background()
	s.writeSnapshot(ctx, st)
	s.appendAux(ctx, st, cmd)
}

func (s *Sink) writeSnapshot(ctx context.Context, st *show.State) {
	if !s.guard.admit() {
		slog.Warn("snapshot skipped, store is failing",
			"version", st.Version,
			"stale_snapshots", s.guard.stale(),
		)
		return
	}

	start := s.now()
	err := func() error {
		data, err := show.Serialise(st)
		if err != nil {
			return err
		}
		return s.store.SaveSnapshot(ctx, string(st.ID), data, st.Version, int64(st.LastUpdated))
	}()

	if err != nil {
		if s.guard.failed() {
			slog.Error("store unresponsive, suspending snapshots", "version", st.Version, "err", err)
		} else {
			slog.Error("snapshot write failed", "version", st.Version, "err", err)
		}
		if s.metrics != nil {
			s.metrics.PersistenceErrors.Add(ctx, 1)
		}
		return
	}

	if recovered, skipped := s.guard.succeeded(); recovered {
		slog.Info("store recovered, snapshots resumed",
			"version", st.Version,
			"missed_snapshots", skipped,
		)
	}
	if s.metrics != nil {
		s.metrics.SnapshotDuration.Record(ctx, s.now().Sub(start).Seconds())
	}
}

// appendAux maintains the append-only analysis tables. Best effort only.
func (s *Sink) appendAux(ctx context.Context, st *show.State, cmd show.Command) {
	nowMs := s.now().UnixMilli()
	var err error
	switch cmd.Type {
	case show.CmdUserConnect:
		u := st.Users[cmd.UserID]
		if u == nil {
			return
		}
		var faction *int
		if u.Faction != nil {
			f := int(*u.Faction)
			faction = &f
		}
		err = s.store.AppendUser(ctx, string(st.ID), string(u.ID), string(u.Seat), faction, int64(u.JoinedAt), nowMs)
	case show.CmdSubmitVote:
		err = s.store.AppendVote(ctx, string(st.ID), string(cmd.UserID),
			st.CurrentRowIndex, currentAttempt(st), string(cmd.FactionVote), string(cmd.PersonalVote), nowMs)
	case show.CmdSubmitFigTreeResponse:
		err = s.store.AppendResponse(ctx, string(st.ID), string(cmd.UserID), cmd.Text, nowMs)
	default:
		return
	}
	if err != nil {
		slog.Debug("aux table append failed", "command", cmd.Type, "err", err)
		if s.metrics != nil {
			s.metrics.PersistenceErrors.Add(ctx, 1)
		}
	}
}

func currentAttempt(st *show.State) int {
	if row := st.CurrentRow(); row != nil {
		return row.Attempts
	}
	return 0
}
