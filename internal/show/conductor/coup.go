package conductor

import (
	"fmt"

	"github.com/jwhector/yggdrasil/internal/show"
)

// submitCoupVote handles SUBMIT_COUP_VOTE. Duplicate submissions from the
// same user are idempotent. When the faction's progress reaches the
// configured threshold the coup fires and the row restarts.
func (c *Conductor) submitCoupVote(st *show.State, cmd show.Command) ([]show.Event, bool) {
	u, ok := st.Users[cmd.UserID]
	if !ok {
		return rejected(show.ErrMissingUser, cmd.Type, fmt.Sprintf("coup vote from unknown user %q", cmd.UserID)), false
	}
	if u.Faction == nil {
		return rejected(show.ErrUserNoFaction, cmd.Type, fmt.Sprintf("coup vote from unassigned user %q", cmd.UserID)), false
	}
	f := st.Faction(*u.Faction)
	if f.CoupUsed {
		return rejected(show.ErrInvalidPhase, cmd.Type, fmt.Sprintf("faction %d has already used its coup", f.ID)), false
	}
	row := st.CurrentRow()
	if st.Phase != show.PhaseRunning || row == nil || row.Phase != show.RowCoupWindow {
		return rejected(show.ErrInvalidPhase, cmd.Type, "coup votes are only accepted during the coup window"), false
	}

	f.CoupVotes.Add(cmd.UserID)

	members := st.ConnectedFactionMembers(f.ID)
	if members == 0 {
		members = 1
	}
	progress := float64(len(f.CoupVotes)) / float64(members)

	if progress >= st.Config.Coup.Threshold {
		return c.fireCoup(st, f, row, false), true
	}

	needed := int(float64(members)*st.Config.Coup.Threshold + 0.999999)
	return []show.Event{{
		Type: show.EvCoupMeterUpdate,
		Payload: show.CoupMeterPayload{
			FactionID: f.ID,
			Votes:     len(f.CoupVotes),
			Needed:    needed,
			Progress:  progress,
		},
	}}, true
}

// triggerCoup handles TRIGGER_COUP: the controller forces a faction's coup,
// bypassing the vote threshold and the coup-window phase check. The
// one-coup-per-show rule still applies.
func (c *Conductor) triggerCoup(st *show.State, cmd show.Command) ([]show.Event, bool) {
	if cmd.FactionID == nil {
		return rejected(show.ErrUnknownCommand, cmd.Type, "trigger coup without faction id"), false
	}
	f := st.Faction(*cmd.FactionID)
	if f == nil {
		return rejected(show.ErrUnknownCommand, cmd.Type, fmt.Sprintf("no faction %d", *cmd.FactionID)), false
	}
	if f.CoupUsed {
		return rejected(show.ErrInvalidPhase, cmd.Type, fmt.Sprintf("faction %d has already used its coup", f.ID)), false
	}
	row := st.CurrentRow()
	if row == nil {
		return rejected(show.ErrInvalidPhase, cmd.Type, "no current row"), false
	}
	return c.fireCoup(st, f, row, true), true
}

// fireCoup applies the coup effects: the faction spends its one coup and
// gains the multiplier bonus, and the row restarts at a fresh attempt.
func (c *Conductor) fireCoup(st *show.State, f *show.Faction, row *show.Row, forced bool) []show.Event {
	f.CoupUsed = true
	f.CoupMultiplier = 1.0 + st.Config.Coup.MultiplierBonus
	f.CoupVotes = show.UserSet{}

	hadCommit := row.CommittedOption != nil
	if hadCommit {
		uncommitRow(st, row)
	}
	row.Attempts++

	prev := row.Phase
	zero := 0
	row.Phase = show.RowAuditioning
	row.AuditionIndex = &zero

	// Causal order: coup, row phase change, uncommit (clears the fired
	// clips), then the re-audition of option 0 which re-fires them.
	return []show.Event{
		{Type: show.EvCoupTriggered, Payload: show.CoupTriggeredPayload{
			FactionID:  f.ID,
			RowIndex:   row.Index,
			Attempt:    row.Attempts,
			Multiplier: f.CoupMultiplier,
			Forced:     forced,
		}},
		{Type: show.EvRowPhaseChanged, Payload: show.RowPhasePayload{
			RowIndex: row.Index, From: prev, To: show.RowAuditioning, Attempt: row.Attempts,
		}},
		{Type: show.EvAudioCue, Payload: show.AudioCue{Kind: show.CueUncommitLayer, Row: row.Index}},
		{Type: show.EvAuditionOptionChanged, Payload: show.AuditionPayload{
			RowIndex: row.Index, StepIndex: 0, OptionIndex: 0, OptionID: row.Options[0].ID,
		}},
		{Type: show.EvAudioCue, Payload: show.AudioCue{Kind: show.CuePlayOption, Row: row.Index, Option: row.Options[0].ID}},
	}
}
