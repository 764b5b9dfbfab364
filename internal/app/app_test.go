package app_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jwhector/yggdrasil/internal/app"
	"github.com/jwhector/yggdrasil/internal/audioroute"
	"github.com/jwhector/yggdrasil/internal/config"
	"github.com/jwhector/yggdrasil/internal/osc"
	"github.com/jwhector/yggdrasil/internal/show"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	yaml := `
server:
  listen_addr: ":0"
  log_level: error
show:
  id: app-show
  factions:
    - {name: North, colour: "#e63946"}
    - {name: East, colour: "#f1fa8c"}
    - {name: South, colour: "#457b9d"}
    - {name: West, colour: "#2a9d8f"}
  timing:
    audition_per_option_ms: 50
    voting_window_ms: 50
    reveal_duration_ms: 50
    coup_window_ms: 50
    accept_votes_while_auditioning: true
  rows:
    - label: Roots
      type: rhythm
      options:
        - {id: r0a, clip: c0}
        - {id: r0b, clip: c1}
        - {id: r0c, clip: c2}
        - {id: r0d, clip: c3}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Persistence.DBPath = filepath.Join(dir, "app.db")
	cfg.Backup.Dir = filepath.Join(dir, "backups")
	return cfg
}

func TestAppWiresTheWholeStack(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	bridge := osc.NewNull()

	a, err := app.New(ctx, cfg, app.WithBridge(bridge))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// Drive a joined user into a running show through the engine.
	e := a.Engine()
	e.Dispatch(ctx, show.Command{Type: show.CmdUserConnect, UserID: "solo", Seat: "s1"})
	e.Dispatch(ctx, show.Command{Type: show.CmdAssignFactions})
	e.Dispatch(ctx, show.Command{Type: show.CmdStartShow})

	st := e.Snapshot()
	if st.Phase != show.PhaseRunning {
		t.Fatalf("phase = %q, want running", st.Phase)
	}
	if st.Users["solo"].Faction == nil {
		t.Error("user never assigned")
	}

	// The audio router must have fired row 0's clips through the bridge.
	fires := 0
	for _, m := range bridge.Sent() {
		if m.Address == audioroute.AddrClipFire {
			fires++
		}
	}
	if fires != show.OptionsPerRow {
		t.Errorf("clip fires = %d, want %d", fires, show.OptionsPerRow)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestAppRecoversFromSnapshot(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := app.New(ctx, cfg, app.WithBridge(osc.NewNull()))
	if err != nil {
		t.Fatal(err)
	}
	e := a.Engine()
	e.Dispatch(ctx, show.Command{Type: show.CmdUserConnect, UserID: "veteran", Seat: "s2"})
	e.Dispatch(ctx, show.Command{Type: show.CmdAssignFactions})
	version := e.Version()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatal(err)
	}

	// A second process over the same database resumes the show mid-phase.
	b, err := app.New(ctx, cfg, app.WithBridge(osc.NewNull()))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = b.Shutdown(ctx2)
	}()

	st := b.Engine().Snapshot()
	if st.Version != version {
		t.Errorf("recovered version = %d, want %d", st.Version, version)
	}
	if st.Phase != show.PhaseAssigning {
		t.Errorf("recovered phase = %q, want assigning", st.Phase)
	}
	if u := st.Users["veteran"]; u == nil || u.Seat != "s2" {
		t.Errorf("recovered user = %+v", u)
	}
}
