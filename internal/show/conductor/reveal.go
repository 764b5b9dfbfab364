package conductor

import (
	"sort"

	"github.com/jwhector/yggdrasil/internal/show"
)

// reveal drives the voting → revealing transition: coherence competition,
// popular plurality, path commitment, and the compound reveal payload.
// Everything here is deterministic except the uniform draw from a tied
// winner set.
func (c *Conductor) reveal(st *show.State, row *show.Row) []show.Event {
	attempt := row.Attempts

	results := make([]show.FactionResult, 0, show.NumFactions)
	for _, f := range st.Factions {
		results = append(results, factionResult(st, f, row.Index, attempt))
	}

	// Winner faction: argmax weighted coherence, uniform random among ties.
	maxWeighted := results[0].WeightedCoherence
	for _, r := range results[1:] {
		if r.WeightedCoherence > maxWeighted {
			maxWeighted = r.WeightedCoherence
		}
	}
	var tied []show.FactionID
	for _, r := range results {
		if r.WeightedCoherence == maxWeighted {
			tied = append(tied, r.FactionID)
		}
	}

	var events []show.Event
	prev := row.Phase
	row.Phase = show.RowRevealing
	events = append(events, show.Event{
		Type: show.EvRowPhaseChanged,
		Payload: show.RowPhasePayload{
			RowIndex: row.Index, From: prev, To: show.RowRevealing, Attempt: attempt,
		},
	})

	winner := tied[0]
	var tiePayload *show.TiePayload
	if len(tied) > 1 {
		winner = tied[c.rng.IntN(len(tied))]
		tiePayload = &show.TiePayload{RowIndex: row.Index, Factions: tied, Coherence: maxWeighted}
		events = append(events,
			show.Event{Type: show.EvTieDetected, Payload: *tiePayload},
			show.Event{Type: show.EvTieResolved, Payload: show.TieResolvedPayload{RowIndex: row.Index, Winner: winner}},
		)
	}

	winningOption := results[winner].BlocOption
	if winningOption == "" {
		winningOption = row.Options[0].ID
	}

	popular := popularVote(st, row, attempt, winningOption)

	row.CommittedOption = &winningOption
	setPathAt(&st.Paths.FactionPath, row.Index, winningOption)
	setPathAt(&st.Paths.PopularPath, row.Index, popular.WinningOption)

	events = append(events,
		show.Event{Type: show.EvReveal, Payload: show.RevealPayload{
			RowIndex:       row.Index,
			Attempt:        attempt,
			FactionResults: results,
			Tie:            tiePayload,
			WinningFaction: winner,
			WinningOption:  winningOption,
			PopularVote:    popular,
		}},
		show.Event{Type: show.EvPathsUpdated, Payload: show.PathsPayload{
			FactionPath: append([]show.OptionID(nil), st.Paths.FactionPath...),
			PopularPath: append([]show.OptionID(nil), st.Paths.PopularPath...),
		}},
		show.Event{Type: show.EvAudioCue, Payload: show.AudioCue{
			Kind: show.CueCommitLayer, Row: row.Index, Option: winningOption,
		}},
	)
	return events
}

// factionResult computes one faction's coherence for (row, attempt).
func factionResult(st *show.State, f *show.Faction, rowIndex, attempt int) show.FactionResult {
	blocs := map[show.OptionID]int{}
	total := 0
	for i := range st.Votes {
		v := &st.Votes[i]
		if v.RowIndex != rowIndex || v.Attempt != attempt {
			continue
		}
		u := st.Users[v.UserID]
		if u == nil || u.Faction == nil || *u.Faction != f.ID {
			continue
		}
		blocs[v.FactionVote]++
		total++
	}

	res := show.FactionResult{
		FactionID:  f.ID,
		VoteCount:  total,
		Multiplier: f.CoupMultiplier,
	}
	if total == 0 {
		return res
	}

	// Largest bloc wins; lexicographically least option id on equal blocs.
	for opt, n := range blocs {
		if n > res.BlocSize || (n == res.BlocSize && (res.BlocOption == "" || opt < res.BlocOption)) {
			res.BlocOption = opt
			res.BlocSize = n
		}
	}
	res.RawCoherence = float64(res.BlocSize) / float64(total)
	res.WeightedCoherence = res.RawCoherence * f.CoupMultiplier
	return res
}

// popularVote tallies personal votes across all factions for (row, attempt).
func popularVote(st *show.State, row *show.Row, attempt int, factionWinner show.OptionID) show.PopularVoteSummary {
	counts := map[show.OptionID]int{}
	for i := range st.Votes {
		v := &st.Votes[i]
		if v.RowIndex == row.Index && v.Attempt == attempt {
			counts[v.PersonalVote]++
		}
	}

	winner := show.OptionID("")
	winnerCount := 0
	ordered := make([]show.OptionCount, 0, len(counts))
	for opt, n := range counts {
		ordered = append(ordered, show.OptionCount{OptionID: opt, Count: n})
		if n > winnerCount || (n == winnerCount && (winner == "" || opt < winner)) {
			winner, winnerCount = opt, n
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].OptionID < ordered[j].OptionID })

	if winner == "" {
		winner = row.Options[0].ID
	}
	return show.PopularVoteSummary{
		WinningOption:       winner,
		Counts:              ordered,
		DivergedFromFaction: winner != factionWinner,
	}
}
