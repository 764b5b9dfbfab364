// Package projection derives the per-role client views from the
// authoritative show state.
//
// Every projection is a pure function of the state (plus the user id for
// audience views): no hidden reads, no mutation, so one snapshot produces
// all views deterministically and the transport can fan them out after
// every command.
package projection

import (
	"github.com/jwhector/yggdrasil/internal/show"
)

// ControllerView is the operator's view: the full state. Containers inside
// the state marshal in an ordering-stable wire form, which is all the
// transport needs.
type ControllerView struct {
	State *show.State `json:"state"`
}

// ProjectorView is the public display's view. It carries no private coup
// meters and no vote log.
type ProjectorView struct {
	ShowID          show.ShowID        `json:"showId"`
	Version         int                `json:"version"`
	Phase           show.ShowPhase     `json:"phase"`
	CurrentRowIndex int                `json:"currentRowIndex"`
	Rows            []ProjectorRow     `json:"rows"`
	Factions        []ProjectorFaction `json:"factions"`
	Paths           show.DualPaths     `json:"paths"`
	FinaleCursor    int                `json:"finaleCursor"`
}

// ProjectorRow is the public slice of one row.
type ProjectorRow struct {
	Index           int            `json:"index"`
	Label           string         `json:"label"`
	Type            string         `json:"type"`
	Phase           show.RowPhase  `json:"phase"`
	Options         []show.Option  `json:"options"`
	CommittedOption *show.OptionID `json:"committedOption"`
	AuditionIndex   *int           `json:"currentAuditionIndex"`
	Attempts        int            `json:"attempts"`
}

// ProjectorFaction is the public slice of one faction.
type ProjectorFaction struct {
	ID     show.FactionID `json:"id"`
	Name   string         `json:"name"`
	Colour string         `json:"colour"`
}

// AudienceView is one audience member's private view.
type AudienceView struct {
	UserID  show.UserID     `json:"userId"`
	Seat    show.SeatID     `json:"seatId,omitempty"`
	Faction *show.FactionID `json:"factionId"`
	Version int             `json:"version"`

	Phase    show.ShowPhase `json:"phase"`
	RowPhase show.RowPhase  `json:"rowPhase,omitempty"`

	CurrentRowIndex int           `json:"currentRowIndex"`
	RowLabel        string        `json:"rowLabel,omitempty"`
	Options         []show.Option `json:"options,omitempty"`
	AuditionIndex   *int          `json:"currentAuditionIndex"`

	// OwnVote is this user's vote for the current row attempt, if any.
	OwnVote *show.Vote `json:"ownVote"`

	// FigTreeSubmitted reports whether the lobby response is in.
	FigTreeSubmitted bool `json:"figTreeSubmitted"`

	// CoupMeter is visible only during the coup window and only for the
	// user's own faction.
	CoupMeter *CoupMeter `json:"coupMeter,omitempty"`

	// CanCoup reports whether this user's faction has not yet spent its
	// coup. It does not depend on the row phase.
	CanCoup bool `json:"canCoup"`
}

// CoupMeter is the audience-visible coup progress for one faction.
type CoupMeter struct {
	FactionID show.FactionID `json:"factionId"`
	Votes     int            `json:"votes"`
	Members   int            `json:"members"`
	Progress  float64        `json:"progress"`
	HasVoted  bool           `json:"hasVoted"`
}

// ForController projects the full operator view.
func ForController(s *show.State) ControllerView {
	return ControllerView{State: s}
}

// ForProjector projects the public display view.
func ForProjector(s *show.State) ProjectorView {
	view := ProjectorView{
		ShowID:          s.ID,
		Version:         s.Version,
		Phase:           s.Phase,
		CurrentRowIndex: s.CurrentRowIndex,
		Paths:           s.Paths,
		FinaleCursor:    s.FinaleCursor,
	}
	for _, r := range s.Rows {
		view.Rows = append(view.Rows, ProjectorRow{
			Index:           r.Index,
			Label:           r.Label,
			Type:            r.Type,
			Phase:           r.Phase,
			Options:         r.Options,
			CommittedOption: r.CommittedOption,
			AuditionIndex:   r.AuditionIndex,
			Attempts:        r.Attempts,
		})
	}
	for _, f := range s.Factions {
		view.Factions = append(view.Factions, ProjectorFaction{ID: f.ID, Name: f.Name, Colour: f.Colour})
	}
	return view
}

// ForAudience projects one user's private view. Unknown users receive a
// minimal view carrying only the show phase, which is what a client sees
// between connecting and joining.
func ForAudience(s *show.State, userID show.UserID) AudienceView {
	view := AudienceView{
		UserID:          userID,
		Version:         s.Version,
		Phase:           s.Phase,
		CurrentRowIndex: s.CurrentRowIndex,
	}

	u := s.Users[userID]
	if u == nil {
		return view
	}
	view.Seat = u.Seat
	view.Faction = u.Faction

	if tree := s.Trees[userID]; tree != nil {
		view.FigTreeSubmitted = tree.FigTreeResponse != nil
	}

	row := s.CurrentRow()
	if row == nil {
		return view
	}
	view.RowPhase = row.Phase
	view.RowLabel = row.Label
	view.Options = row.Options
	view.AuditionIndex = row.AuditionIndex
	view.OwnVote = s.VoteFor(userID, row.Index, row.Attempts)

	if u.Faction != nil {
		f := s.Faction(*u.Faction)
		view.CanCoup = !f.CoupUsed
		if row.Phase == show.RowCoupWindow && !f.CoupUsed {
			members := s.ConnectedFactionMembers(f.ID)
			progress := 0.0
			if members > 0 {
				progress = float64(len(f.CoupVotes)) / float64(members)
			}
			view.CoupMeter = &CoupMeter{
				FactionID: f.ID,
				Votes:     len(f.CoupVotes),
				Members:   members,
				Progress:  progress,
				HasVoted:  f.CoupVotes.Has(userID),
			}
		}
	}
	return view
}
