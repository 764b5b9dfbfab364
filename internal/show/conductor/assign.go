package conductor

import (
	"sort"

	"github.com/jwhector/yggdrasil/internal/show"
)

// balanceWeight makes any faction-size increase dominate any adjacency
// improvement in the assignment score, so hard balance (|max−min| ≤ 1)
// falls out of the greedy minimum.
const balanceWeight = 100

// assignFactions handles ASSIGN_FACTIONS: place every unassigned user,
// most-constrained-first, then move the show to assigning.
func (c *Conductor) assignFactions(st *show.State, cmd show.Command) ([]show.Event, bool) {
	if st.Phase != show.PhaseLobby {
		return rejected(show.ErrInvalidPhase, cmd.Type, "faction assignment is only possible in the lobby"), false
	}

	sizes := make([]int, show.NumFactions)
	seatFaction := map[show.SeatID]show.FactionID{}
	for _, u := range st.Users {
		if u.Faction != nil {
			sizes[*u.Faction]++
			if u.Seat != "" {
				seatFaction[u.Seat] = *u.Faction
			}
		}
	}

	pending := make([]*show.User, 0, len(st.Users))
	for _, u := range st.Users {
		if u.Faction == nil {
			pending = append(pending, u)
		}
	}
	// Deterministic base order; the constraint ordering below re-sorts each
	// step but falls back to id on ties.
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })

	var assignments []show.FactionAssignedPayload
	for len(pending) > 0 {
		// Most constrained first: the user with the most already-assigned
		// neighbours, recomputed every step.
		best := 0
		bestN := c.assignedNeighbours(pending[0], seatFaction)
		for i := 1; i < len(pending); i++ {
			if n := c.assignedNeighbours(pending[i], seatFaction); n > bestN {
				best, bestN = i, n
			}
		}
		u := pending[best]
		pending = append(pending[:best], pending[best+1:]...)

		fid := c.pickFaction(u, sizes, seatFaction)
		f := fid
		u.Faction = &f
		sizes[fid]++
		if u.Seat != "" {
			seatFaction[u.Seat] = fid
		}
		assignments = append(assignments, show.FactionAssignedPayload{UserID: u.ID, FactionID: fid})
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].UserID < assignments[j].UserID })

	prev := st.Phase
	st.Phase = show.PhaseAssigning

	return []show.Event{
		{Type: show.EvShowPhaseChanged, Payload: show.ShowPhasePayload{From: prev, To: st.Phase}},
		{Type: show.EvFactionsAssigned, Payload: show.FactionsAssignedPayload{Assignments: assignments}},
	}, true
}

// pickFaction scores each faction as size·W + same-faction adjacency and
// returns the minimum, breaking ties by faction id.
func (c *Conductor) pickFaction(u *show.User, sizes []int, seatFaction map[show.SeatID]show.FactionID) show.FactionID {
	best := show.FactionID(0)
	bestScore := -1
	for f := 0; f < show.NumFactions; f++ {
		score := sizes[f]*balanceWeight + c.adjacentInFaction(u, show.FactionID(f), seatFaction)
		if bestScore < 0 || score < bestScore {
			best, bestScore = show.FactionID(f), score
		}
	}
	return best
}

// latecomerFaction places a single user joining after assignment: smallest
// faction, ties broken by fewest already-adjacent members, then by id.
func (c *Conductor) latecomerFaction(st *show.State, u *show.User) show.FactionID {
	sizes := make([]int, show.NumFactions)
	seatFaction := map[show.SeatID]show.FactionID{}
	for _, other := range st.Users {
		if other.Faction != nil {
			sizes[*other.Faction]++
			if other.Seat != "" {
				seatFaction[other.Seat] = *other.Faction
			}
		}
	}

	minSize := sizes[0]
	for _, n := range sizes[1:] {
		if n < minSize {
			minSize = n
		}
	}

	best := show.FactionID(-1)
	bestAdj := 0
	for f := 0; f < show.NumFactions; f++ {
		if sizes[f] != minSize {
			continue
		}
		adj := c.adjacentInFaction(u, show.FactionID(f), seatFaction)
		if best < 0 || adj < bestAdj {
			best, bestAdj = show.FactionID(f), adj
		}
	}
	return best
}

// assignedNeighbours counts how many of u's seat neighbours already belong
// to a faction. Seatless users are unconstrained.
func (c *Conductor) assignedNeighbours(u *show.User, seatFaction map[show.SeatID]show.FactionID) int {
	if c.adjacency == nil || u.Seat == "" {
		return 0
	}
	n := 0
	for _, seat := range c.adjacency(u.Seat) {
		if _, ok := seatFaction[seat]; ok {
			n++
		}
	}
	return n
}

// adjacentInFaction counts u's seat neighbours currently assigned to f.
func (c *Conductor) adjacentInFaction(u *show.User, f show.FactionID, seatFaction map[show.SeatID]show.FactionID) int {
	if c.adjacency == nil || u.Seat == "" {
		return 0
	}
	n := 0
	for _, seat := range c.adjacency(u.Seat) {
		if got, ok := seatFaction[seat]; ok && got == f {
			n++
		}
	}
	return n
}
