package projection_test

import (
	"encoding/json"
	"testing"

	"github.com/jwhector/yggdrasil/internal/show"
	"github.com/jwhector/yggdrasil/internal/show/projection"
)

func fixture() *show.State {
	cfg := show.Config{
		ShowID: "proj-show",
		Factions: []show.FactionConfig{
			{Name: "North", Colour: "#e63946"},
			{Name: "East", Colour: "#f1fa8c"},
			{Name: "South", Colour: "#457b9d"},
			{Name: "West", Colour: "#2a9d8f"},
		},
		Timing: show.Timing{AuditionPerOptionMs: 100, AuditionLoopsPerRow: 1, VotingWindowMs: 100, RevealDurationMs: 100, CoupWindowMs: 100, MasterLoopBeats: 4},
		Coup:   show.CoupConfig{Threshold: 0.5, MultiplierBonus: 0.5},
	}
	rc := show.RowConfig{Label: "Roots", Type: "layer"}
	for _, s := range []string{"a", "b", "c", "d"} {
		rc.Options = append(rc.Options, show.OptionConfig{ID: show.OptionID("r0" + s), Clip: "clip"})
	}
	cfg.Rows = append(cfg.Rows, rc)

	st := show.NewState(cfg, 100)
	st.Phase = show.PhaseRunning
	st.Version = 3

	f1 := show.FactionID(1)
	st.Users["ivy"] = &show.User{ID: "ivy", Seat: "s4", Faction: &f1, Connected: true, JoinedAt: 50}
	st.Users["rex"] = &show.User{ID: "rex", Connected: true, JoinedAt: 60}
	st.Trees["ivy"] = &show.PersonalTree{UserID: "ivy"}
	st.Trees["rex"] = &show.PersonalTree{UserID: "rex"}
	st.Votes = append(st.Votes, show.Vote{UserID: "ivy", RowIndex: 0, FactionVote: "r0a", PersonalVote: "r0b", At: 70, Attempt: 0})

	st.Rows[0].Phase = show.RowCoupWindow
	st.Factions[1].CoupVotes.Add("ivy")
	return st
}

func TestProjectionsArePure(t *testing.T) {
	st := fixture()
	a, _ := json.Marshal(projection.ForProjector(st))
	b, _ := json.Marshal(projection.ForProjector(st))
	if string(a) != string(b) {
		t.Error("projector view differs across identical calls")
	}

	x, _ := json.Marshal(projection.ForAudience(st, "ivy"))
	y, _ := json.Marshal(projection.ForAudience(st, "ivy"))
	if string(x) != string(y) {
		t.Error("audience view differs across identical calls")
	}
}

func TestProjectorViewOmitsPrivateState(t *testing.T) {
	st := fixture()
	data, err := json.Marshal(projection.ForProjector(st))
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, private := range []string{"votes", "personalTrees", "users", "currentRowCoupVotes"} {
		if _, ok := raw[private]; ok {
			t.Errorf("projector view leaks %q", private)
		}
	}
	if _, ok := raw["paths"]; !ok {
		t.Error("projector view missing paths")
	}
	if _, ok := raw["factions"]; !ok {
		t.Error("projector view missing faction names")
	}
}

func TestAudienceViewOwnCoupMeter(t *testing.T) {
	st := fixture()

	// ivy's faction has a live coup meter during the coup window.
	view := projection.ForAudience(st, "ivy")
	if view.CoupMeter == nil {
		t.Fatal("ivy has no coup meter during the coup window")
	}
	if view.CoupMeter.FactionID != 1 || !view.CoupMeter.HasVoted {
		t.Errorf("meter = %+v, want faction 1 with hasVoted", view.CoupMeter)
	}
	if !view.CanCoup {
		t.Error("canCoup = false, want true")
	}
	if view.OwnVote == nil || view.OwnVote.PersonalVote != "r0b" {
		t.Errorf("ownVote = %+v, want ivy's vote", view.OwnVote)
	}

	// rex has no faction, hence no meter and no coup.
	view = projection.ForAudience(st, "rex")
	if view.CoupMeter != nil {
		t.Error("rex sees a coup meter without a faction")
	}
	if view.CanCoup {
		t.Error("rex canCoup without a faction")
	}

	// Outside the coup window the meter disappears.
	st.Rows[0].Phase = show.RowVoting
	view = projection.ForAudience(st, "ivy")
	if view.CoupMeter != nil {
		t.Error("coup meter visible outside the coup window")
	}
}

func TestAudienceViewUnknownUser(t *testing.T) {
	st := fixture()
	view := projection.ForAudience(st, "stranger")
	if view.Faction != nil || view.OwnVote != nil {
		t.Errorf("unknown user view = %+v, want minimal", view)
	}
	if view.Phase != show.PhaseRunning {
		t.Errorf("phase = %q, want the show phase", view.Phase)
	}
}

func TestControllerViewCarriesFullState(t *testing.T) {
	st := fixture()
	view := projection.ForController(st)
	if view.State != st {
		t.Error("controller view does not reference the snapshot")
	}
	data, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("controller view must marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty controller payload")
	}
}
