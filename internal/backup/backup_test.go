package backup_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jwhector/yggdrasil/internal/backup"
	"github.com/jwhector/yggdrasil/internal/show"
)

// staticSource satisfies the snapshotter with a fixed state.
type staticSource struct {
	st *show.State
}

func (s *staticSource) Snapshot() *show.State { return s.st.Clone() }

func testState() *show.State {
	cfg := show.Config{
		ShowID: "backup-show",
		Factions: []show.FactionConfig{
			{Name: "North"}, {Name: "East"}, {Name: "South"}, {Name: "West"},
		},
		Timing: show.Timing{AuditionPerOptionMs: 100, AuditionLoopsPerRow: 1, VotingWindowMs: 100, RevealDurationMs: 100, CoupWindowMs: 100, MasterLoopBeats: 4},
		Coup:   show.CoupConfig{Threshold: 0.5, MultiplierBonus: 0.5},
	}
	rc := show.RowConfig{Label: "Row", Type: "layer"}
	for _, s := range []string{"a", "b", "c", "d"} {
		rc.Options = append(rc.Options, show.OptionConfig{ID: show.OptionID("o" + s), Clip: "clip"})
	}
	cfg.Rows = append(cfg.Rows, rc)
	st := show.NewState(cfg, 600)
	st.Version = 42
	return st
}

func TestWriteProducesLoadableFile(t *testing.T) {
	dir := t.TempDir()
	src := &staticSource{st: testState()}
	m, err := backup.New(dir, "test", src)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Write(context.Background(), "phase"); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("files = %d, want 1", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "test-backup-show-") || !strings.HasSuffix(name, "-v42.json") {
		t.Errorf("filename = %q, want {prefix}-{showId}-{ts}-v{version}.json", name)
	}
	if strings.ContainsAny(strings.TrimSuffix(name, ".json"), ":.") {
		t.Errorf("filename %q carries characters the timestamp should have replaced", name)
	}

	st, err := backup.Load(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.ID != "backup-show" || st.Version != 42 {
		t.Errorf("loaded state = %s v%d, want backup-show v42", st.ID, st.Version)
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	src := &staticSource{st: testState()}
	m, err := backup.New(dir, "test", src, backup.WithMaxFiles(3))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 6; i++ {
		src.st.Version = i
		if err := m.Write(context.Background(), "periodic"); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		// Distinct mtimes keep the newest-by-mtime ordering unambiguous.
		time.Sleep(10 * time.Millisecond)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("files after prune = %d, want 3", len(entries))
	}
	for _, e := range entries {
		st, err := backup.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("load %s: %v", e.Name(), err)
		}
		if st.Version < 3 {
			t.Errorf("old version %d survived the prune", st.Version)
		}
	}
}

func TestPruneIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	src := &staticSource{st: testState()}
	m, err := backup.New(dir, "test", src, backup.WithMaxFiles(1))
	if err != nil {
		t.Fatal(err)
	}

	foreign := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(foreign, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := m.Write(context.Background(), "periodic"); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("foreign file was pruned: %v", err)
	}
}

func TestOnCommitWritesAtPhaseBoundary(t *testing.T) {
	dir := t.TempDir()
	src := &staticSource{st: testState()}
	m, err := backup.New(dir, "test", src)
	if err != nil {
		t.Fatal(err)
	}

	m.OnCommit(src.st, show.Command{Type: show.CmdStartShow}, []show.Event{
		{Type: show.EvShowPhaseChanged, Payload: show.ShowPhasePayload{From: show.PhaseAssigning, To: show.PhaseRunning}},
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no backup written for the running phase boundary")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOnCommitIgnoresOtherTransitions(t *testing.T) {
	dir := t.TempDir()
	src := &staticSource{st: testState()}
	m, err := backup.New(dir, "test", src)
	if err != nil {
		t.Fatal(err)
	}

	m.OnCommit(src.st, show.Command{Type: show.CmdPause}, []show.Event{
		{Type: show.EvShowPhaseChanged, Payload: show.ShowPhasePayload{From: show.PhaseRunning, To: show.PhasePaused}},
	})
	time.Sleep(100 * time.Millisecond)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("files = %d, want none for a pause transition", len(entries))
	}
}
