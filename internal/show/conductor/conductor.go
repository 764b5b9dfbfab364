// Package conductor implements the deterministic command/event state
// machine at the centre of Yggdrasil.
//
// The single entry point is [Conductor.Process]: it takes the authoritative
// state and one command, mutates the state in place as the sole contract of
// acceptance, and returns the events the command produced. The caller (the
// engine serialiser) is responsible for persistence and broadcast; Process
// itself never blocks and never performs I/O.
//
// Process is deterministic except for reveal tie resolution, which draws
// from an injectable [Rand] so tests can pin the outcome.
package conductor

import (
	"fmt"
	"math/rand/v2"

	"github.com/jwhector/yggdrasil/internal/show"
)

// Rand is the narrow randomness interface used for tie resolution.
type Rand interface {
	// IntN returns a uniform value in [0, n). n must be > 0.
	IntN(n int) int
}

// stdRand adapts math/rand/v2's global generator.
type stdRand struct{}

func (stdRand) IntN(n int) int { return rand.IntN(n) }

// Adjacency maps a seat to the set of seats adjacent to it. A nil Adjacency
// behaves as the empty relation.
type Adjacency func(show.SeatID) []show.SeatID

// Conductor holds the pure-machine collaborators: the tie RNG and the seat
// adjacency relation. It carries no show state.
type Conductor struct {
	rng       Rand
	adjacency Adjacency
}

// Option configures a [Conductor].
type Option func(*Conductor)

// WithRand injects a deterministic RNG. Tests use this to make reveal ties
// reproducible; production keeps the default non-seeded generator.
func WithRand(r Rand) Option {
	return func(c *Conductor) { c.rng = r }
}

// WithAdjacency supplies the venue's seat adjacency relation for faction
// assignment.
func WithAdjacency(a Adjacency) Option {
	return func(c *Conductor) { c.adjacency = a }
}

// New creates a Conductor.
func New(opts ...Option) *Conductor {
	c := &Conductor{rng: stdRand{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Process applies cmd to st. On acceptance st is mutated, its version
// increments by exactly one, and the produced events are returned. On
// rejection st is untouched and the result is a single ERROR event (or
// nothing, for conditions that are ignored silently, such as votes from
// stale clients).
func (c *Conductor) Process(st *show.State, cmd show.Command) []show.Event {
	events, accepted := c.dispatch(st, cmd)
	if accepted {
		st.Version++
		if cmd.At > st.LastUpdated {
			st.LastUpdated = cmd.At
		}
	}
	return events
}

func (c *Conductor) dispatch(st *show.State, cmd show.Command) ([]show.Event, bool) {
	switch cmd.Type {
	case show.CmdUserConnect:
		return c.userConnect(st, cmd)
	case show.CmdUserDisconnect:
		return c.userDisconnect(st, cmd)
	case show.CmdUserReconnect:
		return c.userReconnect(st, cmd)
	case show.CmdSubmitFigTreeResponse:
		return c.submitFigTreeResponse(st, cmd)
	case show.CmdAssignFactions:
		return c.assignFactions(st, cmd)
	case show.CmdStartShow:
		return c.startShow(st, cmd)
	case show.CmdAdvancePhase:
		return c.advancePhase(st, cmd)
	case show.CmdSubmitVote:
		return c.submitVote(st, cmd)
	case show.CmdSubmitCoupVote:
		return c.submitCoupVote(st, cmd)
	case show.CmdPause:
		return c.pause(st, cmd)
	case show.CmdResume:
		return c.resume(st, cmd)
	case show.CmdSkipRow:
		return c.skipRow(st, cmd)
	case show.CmdRestartRow:
		return c.restartRow(st, cmd)
	case show.CmdTriggerCoup:
		return c.triggerCoup(st, cmd)
	case show.CmdSetTiming:
		return c.setTiming(st, cmd)
	case show.CmdForceFinale:
		return c.forceFinale(st, cmd)
	case show.CmdResetToLobby:
		return c.resetToLobby(st, cmd)
	case show.CmdImportState:
		return c.importState(st, cmd)
	case show.CmdForceReconnectAll:
		return c.forceReconnectAll(st, cmd)
	default:
		return rejected(show.ErrUnknownCommand, cmd.Type, fmt.Sprintf("unknown command type %q", cmd.Type)), false
	}
}

// rejected builds the single-error event batch for a refused command.
func rejected(kind show.ErrorKind, cmd show.CommandType, msg string) []show.Event {
	return []show.Event{{
		Type: show.EvError,
		Payload: show.ErrorPayload{
			Kind:    kind,
			Message: msg,
			Command: cmd,
		},
	}}
}

// ignored is the silent-rejection result for conditions tolerated without
// error (stale votes, unknown users on low-severity commands).
func ignored() ([]show.Event, bool) { return nil, false }
