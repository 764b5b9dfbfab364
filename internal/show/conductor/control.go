package conductor

import (
	"fmt"

	"github.com/jwhector/yggdrasil/internal/show"
)

// pause wraps the current phase. The underlying phase is snapshotted so
// resume can restore it exactly.
func (c *Conductor) pause(st *show.State, cmd show.Command) ([]show.Event, bool) {
	if st.Phase == show.PhasePaused {
		return rejected(show.ErrInvalidPhase, cmd.Type, "show is already paused"), false
	}
	prev := st.Phase
	st.PausedPhase = &prev
	st.Phase = show.PhasePaused
	return []show.Event{
		{Type: show.EvShowPhaseChanged, Payload: show.ShowPhasePayload{From: prev, To: show.PhasePaused}},
		{Type: show.EvAudioCue, Payload: show.AudioCue{Kind: show.CueTransportStop}},
	}, true
}

// resume restores the phase snapshotted at pause.
func (c *Conductor) resume(st *show.State, cmd show.Command) ([]show.Event, bool) {
	if st.Phase != show.PhasePaused || st.PausedPhase == nil {
		return rejected(show.ErrInvalidPhase, cmd.Type, "show is not paused"), false
	}
	restored := *st.PausedPhase
	st.Phase = restored
	st.PausedPhase = nil
	return []show.Event{
		{Type: show.EvShowPhaseChanged, Payload: show.ShowPhasePayload{From: show.PhasePaused, To: restored}},
		{Type: show.EvAudioCue, Payload: show.AudioCue{Kind: show.CueTransportContinue}},
	}, true
}

// setTiming merges a partial timing override into the live config. Nothing
// is broadcast; the next scheduled window simply uses the new values.
func (c *Conductor) setTiming(st *show.State, cmd show.Command) ([]show.Event, bool) {
	if cmd.Timing == nil {
		return rejected(show.ErrUnknownCommand, cmd.Type, "set timing without an override"), false
	}
	st.Config.Timing.Merge(*cmd.Timing)
	return nil, true
}

// forceFinale jumps the show to the finale regardless of row progress.
func (c *Conductor) forceFinale(st *show.State, cmd show.Command) ([]show.Event, bool) {
	if st.Phase == show.PhaseFinale {
		return rejected(show.ErrInvalidPhase, cmd.Type, "show is already in the finale"), false
	}
	return enterFinale(st), true
}

// resetToLobby returns the show to a pristine lobby. Votes, paths, and row
// progress always clear; users and personal trees survive only when the
// command asks for them. Faction coup flags and multipliers reset — this is
// the one path that clears CoupUsed.
func (c *Conductor) resetToLobby(st *show.State, cmd show.Command) ([]show.Event, bool) {
	prev := st.Phase

	st.Phase = show.PhaseLobby
	st.PausedPhase = nil
	st.CurrentRowIndex = 0
	st.FinaleCursor = 0
	st.Votes = nil
	st.Paths = show.DualPaths{}

	for _, r := range st.Rows {
		r.Phase = show.RowPending
		r.CommittedOption = nil
		r.Attempts = 0
		r.AuditionIndex = nil
	}
	for _, f := range st.Factions {
		f.CoupUsed = false
		f.CoupMultiplier = 1.0
		f.CoupVotes = show.UserSet{}
	}

	if cmd.PreserveUsers {
		// Users keep their identity, seat, and faction; their paths restart.
		for _, t := range st.Trees {
			t.Path = nil
		}
	} else {
		st.Users = show.UserMap{}
		st.Trees = show.TreeMap{}
	}

	return []show.Event{
		{Type: show.EvShowReset},
		{Type: show.EvShowPhaseChanged, Payload: show.ShowPhasePayload{From: prev, To: show.PhaseLobby}},
		{Type: show.EvAudioCue, Payload: show.AudioCue{Kind: show.CueResetAll}},
	}, true
}

// importState overwrites the live state with a supplied snapshot (typically
// a backup file). The import is itself an accepted command: the version
// continues from the live state's and advances by one, so stale timers keyed
// to older versions die, and lastUpdated never moves backwards.
func (c *Conductor) importState(st *show.State, cmd show.Command) ([]show.Event, bool) {
	if cmd.Import == nil {
		return rejected(show.ErrUnknownCommand, cmd.Type, "import without a state snapshot"), false
	}
	if !cmd.Import.Phase.IsValid() {
		return rejected(show.ErrUnknownCommand, cmd.Type, fmt.Sprintf("imported state has invalid phase %q", cmd.Import.Phase)), false
	}

	prev := st.Phase
	version, lastUpdated := st.Version, st.LastUpdated
	*st = *cmd.Import.Clone()
	st.Version = version
	if st.LastUpdated < lastUpdated {
		st.LastUpdated = lastUpdated
	}
	return []show.Event{
		{Type: show.EvShowPhaseChanged, Payload: show.ShowPhasePayload{From: prev, To: st.Phase}},
	}, true
}
