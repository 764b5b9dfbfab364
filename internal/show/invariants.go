package show

import (
	"errors"
	"fmt"
)

// CheckInvariants verifies the structural invariants that must hold after
// every accepted command. It is exercised by tests after every scenario
// step; production code never needs it because the conductor maintains the
// invariants by construction.
func (s *State) CheckInvariants() error {
	var errs []error

	if len(s.Factions) != NumFactions {
		errs = append(errs, fmt.Errorf("expected %d factions, have %d", NumFactions, len(s.Factions)))
	}
	for _, r := range s.Rows {
		if len(r.Options) != OptionsPerRow {
			errs = append(errs, fmt.Errorf("row %d: expected %d options, have %d", r.Index, OptionsPerRow, len(r.Options)))
		}
	}

	if s.Phase == PhasePaused {
		if s.PausedPhase == nil {
			errs = append(errs, errors.New("paused show has no pausedPhase"))
		}
	} else if s.PausedPhase != nil {
		errs = append(errs, fmt.Errorf("pausedPhase %q set outside paused", *s.PausedPhase))
	}

	committed := 0
	for _, r := range s.Rows {
		if r.CommittedOption == nil {
			continue
		}
		committed++
		if r.Index >= len(s.Paths.FactionPath) || s.Paths.FactionPath[r.Index] != *r.CommittedOption {
			errs = append(errs, fmt.Errorf("row %d committed option %q missing from faction path", r.Index, *r.CommittedOption))
		}
	}
	if len(s.Paths.FactionPath) != len(s.Paths.PopularPath) {
		errs = append(errs, fmt.Errorf("path lengths diverge: faction %d, popular %d", len(s.Paths.FactionPath), len(s.Paths.PopularPath)))
	}
	if len(s.Paths.FactionPath) != committed {
		errs = append(errs, fmt.Errorf("faction path length %d != committed rows %d", len(s.Paths.FactionPath), committed))
	}

	for _, v := range s.Votes {
		if _, ok := s.Users[v.UserID]; !ok {
			errs = append(errs, fmt.Errorf("vote by unknown user %q", v.UserID))
		}
	}
	for id := range s.Trees {
		if _, ok := s.Users[id]; !ok {
			errs = append(errs, fmt.Errorf("personal tree for unknown user %q", id))
		}
	}
	for _, f := range s.Factions {
		for id := range f.CoupVotes {
			if _, ok := s.Users[id]; !ok {
				errs = append(errs, fmt.Errorf("coup vote by unknown user %q in faction %d", id, f.ID))
			}
		}
	}

	for _, r := range s.Rows {
		auditioning := r.Phase == RowAuditioning
		if auditioning && r.AuditionIndex == nil {
			errs = append(errs, fmt.Errorf("row %d auditioning without audition index", r.Index))
		}
		if !auditioning && r.AuditionIndex != nil {
			errs = append(errs, fmt.Errorf("row %d has audition index outside auditioning", r.Index))
		}
	}

	seen := map[[2]int]map[UserID]bool{}
	for _, v := range s.Votes {
		key := [2]int{v.RowIndex, v.Attempt}
		if seen[key] == nil {
			seen[key] = map[UserID]bool{}
		}
		if seen[key][v.UserID] {
			errs = append(errs, fmt.Errorf("duplicate vote: user %q row %d attempt %d", v.UserID, v.RowIndex, v.Attempt))
		}
		seen[key][v.UserID] = true
	}

	return errors.Join(errs...)
}
