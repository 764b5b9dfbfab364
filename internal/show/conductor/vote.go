package conductor

import (
	"github.com/jwhector/yggdrasil/internal/show"
)

// submitVote handles SUBMIT_VOTE. Uniqueness is by (user, row, attempt):
// re-submissions replace the earlier vote. Votes arriving in the wrong row
// phase — and votes from unknown or unassigned users — are ignored without
// error so stale clients are not punished.
func (c *Conductor) submitVote(st *show.State, cmd show.Command) ([]show.Event, bool) {
	u, ok := st.Users[cmd.UserID]
	if !ok || u.Faction == nil {
		return ignored()
	}
	if st.Phase != show.PhaseRunning {
		return ignored()
	}
	row := st.CurrentRow()
	if row == nil {
		return ignored()
	}

	switch row.Phase {
	case show.RowVoting:
	case show.RowAuditioning:
		if !st.Config.Timing.AcceptVotesWhileAuditioning {
			return ignored()
		}
	default:
		return ignored()
	}

	replaced := false
	if v := st.VoteFor(cmd.UserID, row.Index, row.Attempts); v != nil {
		v.FactionVote = cmd.FactionVote
		v.PersonalVote = cmd.PersonalVote
		v.At = cmd.At
		replaced = true
	} else {
		st.Votes = append(st.Votes, show.Vote{
			UserID:       cmd.UserID,
			RowIndex:     row.Index,
			FactionVote:  cmd.FactionVote,
			PersonalVote: cmd.PersonalVote,
			At:           cmd.At,
			Attempt:      row.Attempts,
		})
	}

	// The personal tree follows the user's latest personal vote for the row.
	tree := st.Trees[cmd.UserID]
	if tree == nil {
		tree = &show.PersonalTree{UserID: cmd.UserID}
		st.Trees[cmd.UserID] = tree
	}
	for len(tree.Path) <= row.Index {
		tree.Path = append(tree.Path, "")
	}
	tree.Path[row.Index] = cmd.PersonalVote

	return []show.Event{{
		Type: show.EvVoteReceived,
		Payload: show.VotePayload{
			UserID:   cmd.UserID,
			RowIndex: row.Index,
			Attempt:  row.Attempts,
			Replaced: replaced,
		},
	}}, true
}
