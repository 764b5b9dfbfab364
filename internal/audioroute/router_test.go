package audioroute

import (
	"testing"

	"github.com/jwhector/yggdrasil/internal/osc"
	"github.com/jwhector/yggdrasil/internal/show"
)

// fixture: a two-row state with options r<row>{a..d}.
func testState() *show.State {
	cfg := show.Config{
		ShowID: "audio-show",
		Factions: []show.FactionConfig{
			{Name: "North"}, {Name: "East"}, {Name: "South"}, {Name: "West"},
		},
		Timing: show.Timing{AuditionPerOptionMs: 100, AuditionLoopsPerRow: 1, VotingWindowMs: 100, RevealDurationMs: 100, CoupWindowMs: 100, MasterLoopBeats: 4},
		Coup:   show.CoupConfig{Threshold: 0.5, MultiplierBonus: 0.5},
	}
	for r := 0; r < 2; r++ {
		rc := show.RowConfig{Label: "Row", Type: "layer"}
		for _, s := range []string{"a", "b", "c", "d"} {
			rc.Options = append(rc.Options, show.OptionConfig{ID: show.OptionID("r" + string(rune('0'+r)) + s), Clip: "clip"})
		}
		cfg.Rows = append(cfg.Rows, rc)
	}
	return show.NewState(cfg, 1)
}

func cue(kind show.CueKind, row int, option show.OptionID) show.Event {
	return show.Event{Type: show.EvAudioCue, Payload: show.AudioCue{Kind: kind, Row: row, Option: option}}
}

// wireCall records one sent message as (address, first int arg, second int arg).
type wireCall struct {
	address string
	a, b    int
}

func calls(t *testing.T, b *osc.NullBridge) []wireCall {
	t.Helper()
	var out []wireCall
	for _, m := range b.Sent() {
		c := wireCall{address: m.Address, a: -1, b: -1}
		if v, ok := m.Int(0); ok {
			c.a = v
		}
		if v, ok := m.Int(1); ok {
			c.b = v
		}
		out = append(out, c)
	}
	return out
}

func TestFirstAuditionFiresWholeRow(t *testing.T) {
	bridge := osc.NewNull()
	r := New(bridge)
	st := testState()

	r.OnCommit(st, show.Command{}, []show.Event{cue(show.CuePlayOption, 0, "r0a")})

	got := calls(t, bridge)
	// Four mutes, four fires, one unmute of track 0.
	mutes, fires, unmutes := 0, 0, 0
	for _, c := range got {
		switch c.address {
		case AddrTrackMute:
			if c.b == 1 {
				mutes++
			} else {
				unmutes++
				if c.a != 0 {
					t.Errorf("unmuted track %d, want 0", c.a)
				}
			}
		case AddrClipFire:
			fires++
			if c.b != 0 {
				t.Errorf("fired slot %d, want 0", c.b)
			}
		}
	}
	if mutes != 4 || fires != 4 || unmutes != 1 {
		t.Errorf("mutes/fires/unmutes = %d/%d/%d, want 4/4/1", mutes, fires, unmutes)
	}
}

func TestSubsequentPlaySwitchesByMuting(t *testing.T) {
	bridge := osc.NewNull()
	r := New(bridge)
	st := testState()

	r.OnCommit(st, show.Command{}, []show.Event{cue(show.CuePlayOption, 0, "r0a")})
	bridge.Reset()

	r.OnCommit(st, show.Command{}, []show.Event{cue(show.CuePlayOption, 0, "r0c")})

	got := calls(t, bridge)
	for _, c := range got {
		if c.address == AddrClipFire {
			t.Fatalf("switch within a row re-fired a clip: %+v", c)
		}
	}
	// Track 0 muted, track 2 unmuted.
	sawMute0, sawUnmute2 := false, false
	for _, c := range got {
		if c.address == AddrTrackMute && c.a == 0 && c.b == 1 {
			sawMute0 = true
		}
		if c.address == AddrTrackMute && c.a == 2 && c.b == 0 {
			sawUnmute2 = true
		}
	}
	if !sawMute0 || !sawUnmute2 {
		t.Errorf("calls = %+v, want mute(0) and unmute(2)", got)
	}
}

func TestSecondRowUsesOffsetTracks(t *testing.T) {
	bridge := osc.NewNull()
	r := New(bridge)
	st := testState()

	r.OnCommit(st, show.Command{}, []show.Event{cue(show.CuePlayOption, 1, "r1b")})

	for _, c := range calls(t, bridge) {
		if c.address == AddrClipFire && (c.a < 4 || c.a > 7) {
			t.Errorf("row 1 fired track %d, want 4..7", c.a)
		}
	}
}

func TestCommitLayerIsolatesWinner(t *testing.T) {
	bridge := osc.NewNull()
	r := New(bridge)
	st := testState()

	r.OnCommit(st, show.Command{}, []show.Event{cue(show.CuePlayOption, 0, "r0a")})
	bridge.Reset()

	r.OnCommit(st, show.Command{}, []show.Event{cue(show.CueCommitLayer, 0, "r0b")})

	got := calls(t, bridge)
	unmuted, muted := map[int]bool{}, map[int]bool{}
	for _, c := range got {
		if c.address != AddrTrackMute {
			continue
		}
		if c.b == 0 {
			unmuted[c.a] = true
		} else {
			muted[c.a] = true
		}
	}
	if !unmuted[1] {
		t.Error("winner track 1 not unmuted")
	}
	for _, track := range []int{0, 2, 3} {
		if !muted[track] {
			t.Errorf("loser track %d not muted", track)
		}
	}
}

func TestUncommitStopsAndForgets(t *testing.T) {
	bridge := osc.NewNull()
	r := New(bridge)
	st := testState()

	r.OnCommit(st, show.Command{}, []show.Event{cue(show.CuePlayOption, 0, "r0a")})
	bridge.Reset()

	r.OnCommit(st, show.Command{}, []show.Event{cue(show.CueUncommitLayer, 0, "")})

	stops := 0
	for _, c := range calls(t, bridge) {
		if c.address == AddrClipStop {
			stops++
		}
	}
	if stops != 4 {
		t.Errorf("clip stops = %d, want all 4", stops)
	}
	bridge.Reset()

	// Forgetting the fired set means the next audition re-fires the row.
	r.OnCommit(st, show.Command{}, []show.Event{cue(show.CuePlayOption, 0, "r0a")})
	fires := 0
	for _, c := range calls(t, bridge) {
		if c.address == AddrClipFire {
			fires++
		}
	}
	if fires != 4 {
		t.Errorf("fires after uncommit = %d, want a full re-fire of 4", fires)
	}
}

func TestPlayTimelineBuildsPath(t *testing.T) {
	bridge := osc.NewNull()
	r := New(bridge)
	st := testState()

	// Row 0 already audible from the show; the timeline silences it and
	// builds both committed layers.
	r.OnCommit(st, show.Command{}, []show.Event{cue(show.CuePlayOption, 0, "r0d")})
	bridge.Reset()

	r.OnCommit(st, show.Command{}, []show.Event{{
		Type:    show.EvAudioCue,
		Payload: show.AudioCue{Kind: show.CuePlayTimeline, Path: []show.OptionID{"r0b", "r1c"}},
	}})

	got := calls(t, bridge)
	unmuted := map[int]bool{}
	fired := map[int]bool{}
	for _, c := range got {
		if c.address == AddrTrackMute && c.b == 0 {
			unmuted[c.a] = true
		}
		if c.address == AddrClipFire {
			fired[c.a] = true
		}
	}
	if !unmuted[1] || !unmuted[6] {
		t.Errorf("unmuted = %v, want tracks 1 and 6", unmuted)
	}
	// Row 0's clips fired during the audition; only row 1's clip is new.
	if fired[1] {
		t.Error("timeline re-fired an already fired clip")
	}
	if !fired[6] {
		t.Error("timeline did not fire the unfired track 6")
	}
}

func TestTransportAndReset(t *testing.T) {
	bridge := osc.NewNull()
	r := New(bridge)
	st := testState()

	r.OnCommit(st, show.Command{}, []show.Event{
		{Type: show.EvAudioCue, Payload: show.AudioCue{Kind: show.CueTransportStop}},
		{Type: show.EvAudioCue, Payload: show.AudioCue{Kind: show.CueTransportContinue}},
	})
	got := calls(t, bridge)
	if len(got) != 2 || got[0].address != AddrSongStop || got[1].address != AddrSongContinue {
		t.Errorf("calls = %+v, want stop then continue", got)
	}

	r.OnCommit(st, show.Command{}, []show.Event{cue(show.CuePlayOption, 0, "r0a")})
	bridge.Reset()
	r.OnCommit(st, show.Command{}, []show.Event{{
		Type:    show.EvAudioCue,
		Payload: show.AudioCue{Kind: show.CueResetAll},
	}})

	sawStop, sawRewind := false, false
	for _, m := range bridge.Sent() {
		if m.Address == AddrSongStop {
			sawStop = true
		}
		if m.Address == AddrSongSetTime {
			sawRewind = true
		}
	}
	if !sawStop || !sawRewind {
		t.Error("reset did not stop transport and rewind")
	}
}
