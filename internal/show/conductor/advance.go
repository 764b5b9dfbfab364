package conductor

import (
	"fmt"

	"github.com/jwhector/yggdrasil/internal/show"
)

// auditionSteps is the total number of ADVANCE_PHASE steps an audition
// spans: one full cycle of the four options per configured loop.
func auditionSteps(st *show.State) int {
	loops := st.Config.Timing.AuditionLoopsPerRow
	if loops < 1 {
		loops = 1
	}
	return show.OptionsPerRow * loops
}

// startShow handles START_SHOW: the show leaves assigning and row 0 begins
// auditioning.
func (c *Conductor) startShow(st *show.State, cmd show.Command) ([]show.Event, bool) {
	if st.Phase != show.PhaseAssigning {
		return rejected(show.ErrInvalidPhase, cmd.Type, fmt.Sprintf("cannot start show from %q", st.Phase)), false
	}
	if len(st.Rows) == 0 {
		return rejected(show.ErrInvalidPhase, cmd.Type, "show has no rows"), false
	}

	prev := st.Phase
	st.Phase = show.PhaseRunning
	st.CurrentRowIndex = 0

	events := []show.Event{
		{Type: show.EvShowPhaseChanged, Payload: show.ShowPhasePayload{From: prev, To: st.Phase}},
	}
	events = append(events, enterAuditioning(st.Rows[0])...)
	return events, true
}

// advancePhase handles ADVANCE_PHASE. While running it drives the per-row
// machine; during the finale it steps the timeline cursor.
func (c *Conductor) advancePhase(st *show.State, cmd show.Command) ([]show.Event, bool) {
	switch st.Phase {
	case show.PhaseRunning:
		return c.advanceRow(st, cmd)
	case show.PhaseFinale:
		return c.advanceFinale(st)
	default:
		return rejected(show.ErrInvalidPhase, cmd.Type, fmt.Sprintf("cannot advance phase while %q", st.Phase)), false
	}
}

func (c *Conductor) advanceRow(st *show.State, cmd show.Command) ([]show.Event, bool) {
	row := st.CurrentRow()
	if row == nil {
		return rejected(show.ErrInvalidPhase, cmd.Type, "no current row"), false
	}

	switch row.Phase {
	case show.RowPending:
		return enterAuditioning(row), true

	case show.RowAuditioning:
		next := *row.AuditionIndex + 1
		if next < auditionSteps(st) {
			row.AuditionIndex = &next
			opt := row.Options[next%show.OptionsPerRow]
			return []show.Event{
				{Type: show.EvAuditionOptionChanged, Payload: show.AuditionPayload{
					RowIndex: row.Index, StepIndex: next, OptionIndex: opt.Index, OptionID: opt.ID,
				}},
				{Type: show.EvAudioCue, Payload: show.AudioCue{Kind: show.CuePlayOption, Row: row.Index, Option: opt.ID}},
			}, true
		}
		row.AuditionIndex = nil
		row.Phase = show.RowVoting
		return []show.Event{
			{Type: show.EvRowPhaseChanged, Payload: show.RowPhasePayload{
				RowIndex: row.Index, From: show.RowAuditioning, To: show.RowVoting, Attempt: row.Attempts,
			}},
		}, true

	case show.RowVoting:
		return c.reveal(st, row), true

	case show.RowRevealing:
		row.Phase = show.RowCoupWindow
		return []show.Event{
			{Type: show.EvRowPhaseChanged, Payload: show.RowPhasePayload{
				RowIndex: row.Index, From: show.RowRevealing, To: show.RowCoupWindow, Attempt: row.Attempts,
			}},
		}, true

	case show.RowCoupWindow:
		row.Phase = show.RowCommitted
		return []show.Event{
			{Type: show.EvRowPhaseChanged, Payload: show.RowPhasePayload{
				RowIndex: row.Index, From: show.RowCoupWindow, To: show.RowCommitted, Attempt: row.Attempts,
			}},
		}, true

	case show.RowCommitted:
		return c.advanceToNextRow(st), true

	default:
		return rejected(show.ErrInvalidPhase, cmd.Type, fmt.Sprintf("row %d in unknown phase %q", row.Index, row.Phase)), false
	}
}

// advanceToNextRow moves past a committed row: either the next row begins
// auditioning (with coup multipliers and coup-vote sets reset — the boost
// is row-scoped) or, after the last row, the finale begins.
func (c *Conductor) advanceToNextRow(st *show.State) []show.Event {
	if st.CurrentRowIndex+1 >= len(st.Rows) {
		return enterFinale(st)
	}

	st.CurrentRowIndex++
	resetCoupMultipliers(st)
	clearCoupVotesForNewRow(st)
	return enterAuditioning(st.Rows[st.CurrentRowIndex])
}

// enterAuditioning puts a row at audition step 0 and cues its first option.
func enterAuditioning(row *show.Row) []show.Event {
	prev := row.Phase
	zero := 0
	row.Phase = show.RowAuditioning
	row.AuditionIndex = &zero
	opt := row.Options[0]
	return []show.Event{
		{Type: show.EvRowPhaseChanged, Payload: show.RowPhasePayload{
			RowIndex: row.Index, From: prev, To: show.RowAuditioning, Attempt: row.Attempts,
		}},
		{Type: show.EvAuditionOptionChanged, Payload: show.AuditionPayload{
			RowIndex: row.Index, StepIndex: 0, OptionIndex: 0, OptionID: opt.ID,
		}},
		{Type: show.EvAudioCue, Payload: show.AudioCue{Kind: show.CuePlayOption, Row: row.Index, Option: opt.ID}},
	}
}

// enterFinale transitions to the finale and cues popular-path playback.
func enterFinale(st *show.State) []show.Event {
	prev := st.Phase
	st.Phase = show.PhaseFinale
	st.PausedPhase = nil
	st.FinaleCursor = 0

	popular := append([]show.OptionID(nil), st.Paths.PopularPath...)
	return []show.Event{
		{Type: show.EvShowPhaseChanged, Payload: show.ShowPhasePayload{From: prev, To: show.PhaseFinale}},
		{Type: show.EvFinalePopularSong, Payload: show.FinaleSongPayload{PopularPath: popular}},
		{Type: show.EvAudioCue, Payload: show.AudioCue{Kind: show.CuePlayTimeline, Path: popular}},
	}
}

// advanceFinale steps the finale timeline cursor; past the last row the
// show ends.
func (c *Conductor) advanceFinale(st *show.State) ([]show.Event, bool) {
	st.FinaleCursor++
	if st.FinaleCursor >= len(st.Rows) {
		prev := st.Phase
		st.Phase = show.PhaseEnded
		return []show.Event{
			{Type: show.EvFinaleCursor, Payload: show.FinaleCursorPayload{Cursor: st.FinaleCursor, Done: true}},
			{Type: show.EvShowPhaseChanged, Payload: show.ShowPhasePayload{From: prev, To: show.PhaseEnded}},
		}, true
	}
	return []show.Event{
		{Type: show.EvFinaleCursor, Payload: show.FinaleCursorPayload{Cursor: st.FinaleCursor}},
	}, true
}

// skipRow handles SKIP_ROW: the current row commits with its first option
// and both paths take that option.
func (c *Conductor) skipRow(st *show.State, cmd show.Command) ([]show.Event, bool) {
	if st.Phase != show.PhaseRunning {
		return rejected(show.ErrInvalidPhase, cmd.Type, fmt.Sprintf("cannot skip a row while %q", st.Phase)), false
	}
	row := st.CurrentRow()
	if row == nil {
		return rejected(show.ErrInvalidPhase, cmd.Type, "no current row"), false
	}

	prev := row.Phase
	winner := row.Options[0].ID
	row.Phase = show.RowCommitted
	row.AuditionIndex = nil
	row.CommittedOption = &winner
	setPathAt(&st.Paths.FactionPath, row.Index, winner)
	setPathAt(&st.Paths.PopularPath, row.Index, winner)

	return []show.Event{
		{Type: show.EvRowPhaseChanged, Payload: show.RowPhasePayload{
			RowIndex: row.Index, From: prev, To: show.RowCommitted, Attempt: row.Attempts,
		}},
		{Type: show.EvPathsUpdated, Payload: show.PathsPayload{
			FactionPath: append([]show.OptionID(nil), st.Paths.FactionPath...),
			PopularPath: append([]show.OptionID(nil), st.Paths.PopularPath...),
		}},
		{Type: show.EvAudioCue, Payload: show.AudioCue{Kind: show.CueCommitLayer, Row: row.Index, Option: winner}},
	}, true
}

// restartRow handles RESTART_ROW: a fresh attempt from audition step 0.
// Votes for the new attempt start empty; prior attempts stay in the log.
func (c *Conductor) restartRow(st *show.State, cmd show.Command) ([]show.Event, bool) {
	if st.Phase != show.PhaseRunning {
		return rejected(show.ErrInvalidPhase, cmd.Type, fmt.Sprintf("cannot restart a row while %q", st.Phase)), false
	}
	row := st.CurrentRow()
	if row == nil {
		return rejected(show.ErrInvalidPhase, cmd.Type, "no current row"), false
	}

	var events []show.Event
	if row.CommittedOption != nil {
		uncommitRow(st, row)
		events = append(events, show.Event{
			Type:    show.EvAudioCue,
			Payload: show.AudioCue{Kind: show.CueUncommitLayer, Row: row.Index},
		})
	}
	row.Attempts++
	events = append(events, enterAuditioning(row)...)
	return events, true
}

// uncommitRow undoes a commit: the committed option is cleared and both
// paths are truncated back to the row. Rows commit strictly in order, so
// truncating to the row index removes exactly this row's entries.
func uncommitRow(st *show.State, row *show.Row) {
	row.CommittedOption = nil
	if len(st.Paths.FactionPath) > row.Index {
		st.Paths.FactionPath = st.Paths.FactionPath[:row.Index]
	}
	if len(st.Paths.PopularPath) > row.Index {
		st.Paths.PopularPath = st.Paths.PopularPath[:row.Index]
	}
}

// setPathAt writes opt at index i, growing the path as needed.
func setPathAt(path *[]show.OptionID, i int, opt show.OptionID) {
	for len(*path) <= i {
		*path = append(*path, "")
	}
	(*path)[i] = opt
}

// resetCoupMultipliers returns every faction to multiplier 1.0.
func resetCoupMultipliers(st *show.State) {
	for _, f := range st.Factions {
		f.CoupMultiplier = 1.0
	}
}

// clearCoupVotesForNewRow empties every faction's coup-vote set.
func clearCoupVotesForNewRow(st *show.State) {
	for _, f := range st.Factions {
		f.CoupVotes = show.UserSet{}
	}
}
