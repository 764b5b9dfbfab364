package conductor_test

import (
	"testing"

	"github.com/jwhector/yggdrasil/internal/show"
	"github.com/jwhector/yggdrasil/internal/show/conductor"
)

// vote submits a (factionVote, personalVote) pair for a user.
func vote(t *testing.T, c *conductor.Conductor, st *show.State, user show.UserID, faction, personal string) {
	t.Helper()
	events := dispatch(t, c, st, show.Command{
		Type:         show.CmdSubmitVote,
		UserID:       user,
		FactionVote:  show.OptionID(faction),
		PersonalVote: show.OptionID(personal),
		At:           2000,
	})
	if !hasEvent(events, show.EvVoteReceived) {
		t.Fatalf("vote by %s not acknowledged: %v", user, eventTypes(events))
	}
}

// revealNow drives the current row from voting into revealing and returns
// the reveal payload.
func revealNow(t *testing.T, c *conductor.Conductor, st *show.State) (show.RevealPayload, []show.Event) {
	t.Helper()
	advanceTo(t, c, st, show.RowVoting)
	events := dispatch(t, c, st, show.Command{Type: show.CmdAdvancePhase})
	payload := findEvent(t, events, show.EvReveal).Payload.(show.RevealPayload)
	return payload, events
}

func TestRevealFullCoherence(t *testing.T) {
	// S1: faction 0 votes A,A,A; everyone else silent.
	c, st := newShow()
	users := connect(t, c, st, 3)
	for _, id := range users {
		setFaction(st, id, 0)
	}
	st.Phase = show.PhaseAssigning
	dispatch(t, c, st, show.Command{Type: show.CmdStartShow})

	for _, id := range users {
		vote(t, c, st, id, "r0a", "r0a")
	}

	payload, _ := revealNow(t, c, st)
	if got := payload.FactionResults[0].RawCoherence; got != 1.0 {
		t.Errorf("rawCoherence = %v, want 1.0", got)
	}
	if payload.WinningFaction != 0 {
		t.Errorf("winningFaction = %d, want 0", payload.WinningFaction)
	}
	if payload.WinningOption != "r0a" {
		t.Errorf("winningOption = %q, want r0a", payload.WinningOption)
	}
	if st.Paths.FactionPath[0] != "r0a" {
		t.Errorf("factionPath[0] = %q, want r0a", st.Paths.FactionPath[0])
	}
	if payload.Tie != nil {
		t.Error("unexpected tie")
	}
}

func TestRevealWeightedTie(t *testing.T) {
	// S2: faction 0 splits 2-2 with multiplier 1.5 (weighted 0.75);
	// faction 1 splits 3-1 (raw 0.75, weighted 0.75). The scripted RNG
	// picks the second tied faction.
	c, st := newShow(conductor.WithRand(&fixedRand{vals: []int{1}}))
	ids := []show.UserID{"f0a", "f0b", "f0c", "f0d", "f1a", "f1b", "f1c", "f1d"}
	for _, id := range ids {
		dispatch(t, c, st, show.Command{Type: show.CmdUserConnect, UserID: id, At: 1000})
	}
	for _, id := range ids[:4] {
		setFaction(st, id, 0)
	}
	for _, id := range ids[4:] {
		setFaction(st, id, 1)
	}
	st.Phase = show.PhaseAssigning
	dispatch(t, c, st, show.Command{Type: show.CmdStartShow})
	st.Factions[0].CoupMultiplier = 1.5

	vote(t, c, st, "f0a", "r0a", "r0a")
	vote(t, c, st, "f0b", "r0a", "r0a")
	vote(t, c, st, "f0c", "r0b", "r0b")
	vote(t, c, st, "f0d", "r0b", "r0b")
	vote(t, c, st, "f1a", "r0c", "r0c")
	vote(t, c, st, "f1b", "r0c", "r0c")
	vote(t, c, st, "f1c", "r0c", "r0c")
	vote(t, c, st, "f1d", "r0d", "r0d")

	payload, events := revealNow(t, c, st)

	if !hasEvent(events, show.EvTieDetected) || !hasEvent(events, show.EvTieResolved) {
		t.Fatalf("events = %v, want tie detection and resolution", eventTypes(events))
	}
	if payload.Tie == nil || len(payload.Tie.Factions) != 2 {
		t.Fatalf("tie = %+v, want factions {0,1}", payload.Tie)
	}
	if payload.WinningFaction != 1 {
		t.Errorf("winningFaction = %d, want scripted 1", payload.WinningFaction)
	}
	if payload.WinningOption != "r0c" {
		t.Errorf("winningOption = %q, want faction 1's bloc r0c", payload.WinningOption)
	}

	// Faction 0's bloc is a 2-2 split; the lexicographically least option
	// must be reported as its bloc.
	if payload.FactionResults[0].BlocOption != "r0a" {
		t.Errorf("faction 0 bloc = %q, want lex-least r0a", payload.FactionResults[0].BlocOption)
	}
	if payload.FactionResults[0].WeightedCoherence != 0.75 {
		t.Errorf("faction 0 weighted = %v, want 0.75", payload.FactionResults[0].WeightedCoherence)
	}
}

func TestRevealPopularDivergence(t *testing.T) {
	// S3: three members vote factionVote=A, personalVote=B.
	c, st := newShow()
	users := connect(t, c, st, 3)
	for _, id := range users {
		setFaction(st, id, 0)
	}
	st.Phase = show.PhaseAssigning
	dispatch(t, c, st, show.Command{Type: show.CmdStartShow})

	for _, id := range users {
		vote(t, c, st, id, "r0a", "r0b")
	}

	payload, _ := revealNow(t, c, st)
	if payload.WinningOption != "r0a" {
		t.Errorf("winningOption = %q, want r0a", payload.WinningOption)
	}
	if payload.PopularVote.WinningOption != "r0b" {
		t.Errorf("popular option = %q, want r0b", payload.PopularVote.WinningOption)
	}
	if !payload.PopularVote.DivergedFromFaction {
		t.Error("divergedFromFaction = false, want true")
	}
	if st.Paths.PopularPath[0] != "r0b" {
		t.Errorf("popularPath[0] = %q, want r0b", st.Paths.PopularPath[0])
	}
}

func TestRevealWithNoVotesCommitsFirstOption(t *testing.T) {
	c, st := newShow(conductor.WithRand(&fixedRand{vals: []int{0}}))
	users := connect(t, c, st, 4)
	startRunning(t, c, st, users)

	payload, _ := revealNow(t, c, st)
	if payload.WinningOption != "r0a" {
		t.Errorf("winningOption = %q, want the row's first option", payload.WinningOption)
	}
	if len(st.Paths.FactionPath) != 1 || len(st.Paths.PopularPath) != 1 {
		t.Errorf("paths = %v, want single entries", st.Paths)
	}
}

func TestVoteReplacementKeepsUniqueness(t *testing.T) {
	c, st := newShow()
	users := connect(t, c, st, 4)
	startRunning(t, c, st, users)

	vote(t, c, st, "u0", "r0a", "r0a")
	events := dispatch(t, c, st, show.Command{
		Type: show.CmdSubmitVote, UserID: "u0",
		FactionVote: "r0b", PersonalVote: "r0b", At: 2500,
	})
	p := findEvent(t, events, show.EvVoteReceived).Payload.(show.VotePayload)
	if !p.Replaced {
		t.Error("replaced = false, want true")
	}

	count := 0
	for _, v := range st.Votes {
		if v.UserID == "u0" && v.RowIndex == 0 && v.Attempt == 0 {
			count++
			if v.FactionVote != "r0b" {
				t.Errorf("factionVote = %q, want replacement r0b", v.FactionVote)
			}
		}
	}
	if count != 1 {
		t.Errorf("votes for (u0, 0, 0) = %d, want exactly 1", count)
	}
	if st.Trees["u0"].Path[0] != "r0b" {
		t.Errorf("personal tree path[0] = %q, want r0b", st.Trees["u0"].Path[0])
	}
}

func TestVoteInWrongPhaseSilentlyIgnored(t *testing.T) {
	c, st := newShow()
	users := connect(t, c, st, 4)
	startRunning(t, c, st, users)
	advanceTo(t, c, st, show.RowCoupWindow)

	events := reject(t, c, st, show.Command{
		Type: show.CmdSubmitVote, UserID: "u0",
		FactionVote: "r0a", PersonalVote: "r0a",
	})
	if len(events) != 0 {
		t.Errorf("events = %v, want silence for a stale vote", eventTypes(events))
	}
}

func TestVoteDuringAuditionRespectsConfig(t *testing.T) {
	c, st := newShow()
	users := connect(t, c, st, 4)
	startRunning(t, c, st, users)

	// Combined flow (default in testConfig): audition votes accepted.
	vote(t, c, st, "u0", "r0a", "r0a")

	// Separate flow: audition votes ignored.
	st.Config.Timing.AcceptVotesWhileAuditioning = false
	reject(t, c, st, show.Command{
		Type: show.CmdSubmitVote, UserID: "u1",
		FactionVote: "r0a", PersonalVote: "r0a",
	})
}

func TestVoteFromUnassignedUserIgnored(t *testing.T) {
	c, st := newShow()
	users := connect(t, c, st, 4)
	startRunning(t, c, st, users)

	dispatch(t, c, st, show.Command{Type: show.CmdUserConnect, UserID: "drifter", At: 1500})
	st.Users["drifter"].Faction = nil

	reject(t, c, st, show.Command{
		Type: show.CmdSubmitVote, UserID: "drifter",
		FactionVote: "r0a", PersonalVote: "r0a",
	})
	reject(t, c, st, show.Command{
		Type: show.CmdSubmitVote, UserID: "nobody",
		FactionVote: "r0a", PersonalVote: "r0a",
	})
}
