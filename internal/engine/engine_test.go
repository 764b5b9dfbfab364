package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jwhector/yggdrasil/internal/engine"
	"github.com/jwhector/yggdrasil/internal/show"
	"github.com/jwhector/yggdrasil/internal/show/conductor"
)

func testState() *show.State {
	cfg := show.Config{
		ShowID: "engine-show",
		Factions: []show.FactionConfig{
			{Name: "North"}, {Name: "East"}, {Name: "South"}, {Name: "West"},
		},
		Timing: show.Timing{AuditionPerOptionMs: 100, AuditionLoopsPerRow: 1, VotingWindowMs: 100, RevealDurationMs: 100, CoupWindowMs: 100, MasterLoopBeats: 4, AcceptVotesWhileAuditioning: true},
		Coup:   show.CoupConfig{Threshold: 0.5, MultiplierBonus: 0.5},
	}
	rc := show.RowConfig{Label: "Row", Type: "layer"}
	for _, s := range []string{"a", "b", "c", "d"} {
		rc.Options = append(rc.Options, show.OptionConfig{ID: show.OptionID("o" + s), Clip: "clip"})
	}
	cfg.Rows = append(cfg.Rows, rc)
	return show.NewState(cfg, 1)
}

// recordingSink captures every commit it sees.
type recordingSink struct {
	mu       sync.Mutex
	versions []int
	states   []*show.State
}

func (r *recordingSink) OnCommit(st *show.State, cmd show.Command, events []show.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions = append(r.versions, st.Version)
	r.states = append(r.states, st)
}

func TestDispatchNotifiesSinksInVersionOrder(t *testing.T) {
	e := engine.New(testState(), conductor.New())
	sink := &recordingSink{}
	e.AddSink(sink)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		id := show.UserID(string(rune('a' + i)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Dispatch(context.Background(), show.Command{Type: show.CmdUserConnect, UserID: id})
		}()
	}
	wg.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.versions) != 8 {
		t.Fatalf("commits observed = %d, want 8", len(sink.versions))
	}
	for i, v := range sink.versions {
		if v != i+1 {
			t.Fatalf("versions = %v, want strictly ascending from 1", sink.versions)
		}
	}
}

func TestRejectedCommandSkipsSinks(t *testing.T) {
	e := engine.New(testState(), conductor.New())
	sink := &recordingSink{}
	e.AddSink(sink)

	events := e.Dispatch(context.Background(), show.Command{Type: "NOPE"})
	if len(events) != 1 || events[0].Type != show.EvError {
		t.Fatalf("events = %v, want one error", events)
	}
	if len(sink.versions) != 0 {
		t.Error("sink notified for a rejected command")
	}
	if e.Version() != 0 {
		t.Errorf("version = %d, want untouched 0", e.Version())
	}
}

func TestSinkReceivesIsolatedClone(t *testing.T) {
	e := engine.New(testState(), conductor.New())
	sink := &recordingSink{}
	e.AddSink(sink)

	e.Dispatch(context.Background(), show.Command{Type: show.CmdUserConnect, UserID: "solo"})

	// Mutating the sink's copy must not leak into the authoritative state.
	sink.states[0].Users["solo"].Connected = false
	if !e.Snapshot().Users["solo"].Connected {
		t.Error("sink clone shares memory with the authoritative state")
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	e := engine.New(testState(), conductor.New())
	e.Dispatch(context.Background(), show.Command{Type: show.CmdUserConnect, UserID: "solo"})

	snap := e.Snapshot()
	snap.Users["solo"].Seat = "hijacked"
	if e.Snapshot().Users["solo"].Seat == "hijacked" {
		t.Error("snapshot shares memory with the authoritative state")
	}
}

func TestCommandTimestampStamped(t *testing.T) {
	fixed := time.UnixMilli(999_999)
	e := engine.New(testState(), conductor.New(), engine.WithClock(func() time.Time { return fixed }))

	e.Dispatch(context.Background(), show.Command{Type: show.CmdUserConnect, UserID: "clocked"})
	u := e.Snapshot().Users["clocked"]
	if u.JoinedAt != show.Millis(999_999) {
		t.Errorf("joinedAt = %d, want the injected clock's 999999", u.JoinedAt)
	}
}
