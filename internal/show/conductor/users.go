package conductor

import (
	"fmt"

	"github.com/jwhector/yggdrasil/internal/show"
)

// userConnect handles USER_CONNECT. Idempotent: a known user is marked
// reconnected, an unknown one is created with a fresh personal tree. Users
// joining after faction assignment are placed immediately (latecomer rule),
// unless they present a still-valid prior faction from before a crash.
func (c *Conductor) userConnect(st *show.State, cmd show.Command) ([]show.Event, bool) {
	if cmd.UserID == "" {
		return rejected(show.ErrMissingUser, cmd.Type, "connect without user id"), false
	}

	u, known := st.Users[cmd.UserID]
	if known {
		u.Connected = true
		if cmd.Seat != "" {
			u.Seat = cmd.Seat
		}
	} else {
		u = &show.User{
			ID:        cmd.UserID,
			Seat:      cmd.Seat,
			Connected: true,
			JoinedAt:  cmd.At,
		}
		st.Users[cmd.UserID] = u
		st.Trees[cmd.UserID] = &show.PersonalTree{UserID: cmd.UserID}
	}

	events := []show.Event{{
		Type:    show.EvUserJoined,
		Payload: show.UserPayload{UserID: u.ID, Seat: u.Seat, Faction: u.Faction},
	}}

	if u.Faction == nil && st.EffectivePhase() != show.PhaseLobby {
		var fid show.FactionID
		if cmd.ExistingFaction != nil && st.Faction(*cmd.ExistingFaction) != nil {
			fid = *cmd.ExistingFaction
		} else {
			fid = c.latecomerFaction(st, u)
		}
		f := fid
		u.Faction = &f
		events = append(events, show.Event{
			Type:    show.EvFactionAssigned,
			Payload: show.FactionAssignedPayload{UserID: u.ID, FactionID: fid},
		})
	}

	events = append(events, show.Event{
		Type:    show.EvStateSync,
		Payload: show.UserPayload{UserID: u.ID, Faction: u.Faction},
	})
	return events, true
}

// userDisconnect flips the connected flag. Unknown users are ignored: the
// disconnect may be a heartbeat-synthesised duplicate.
func (c *Conductor) userDisconnect(st *show.State, cmd show.Command) ([]show.Event, bool) {
	u, ok := st.Users[cmd.UserID]
	if !ok {
		return ignored()
	}
	u.Connected = false
	return []show.Event{{
		Type:    show.EvUserLeft,
		Payload: show.UserPayload{UserID: u.ID, Faction: u.Faction},
	}}, true
}

// userReconnect restores the connected flag. The client's last-seen version
// is informational only — the transport always resyncs full state.
func (c *Conductor) userReconnect(st *show.State, cmd show.Command) ([]show.Event, bool) {
	u, ok := st.Users[cmd.UserID]
	if !ok {
		return rejected(show.ErrMissingUser, cmd.Type, fmt.Sprintf("reconnect for unknown user %q", cmd.UserID)), false
	}
	u.Connected = true
	return []show.Event{
		{Type: show.EvUserReconnected, Payload: show.UserPayload{UserID: u.ID, Faction: u.Faction}},
		{Type: show.EvStateSync, Payload: show.UserPayload{UserID: u.ID, Faction: u.Faction}},
	}, true
}

// submitFigTreeResponse records the lobby prompt response. Nothing is
// broadcast; the response only surfaces in the user's own projection.
func (c *Conductor) submitFigTreeResponse(st *show.State, cmd show.Command) ([]show.Event, bool) {
	if _, ok := st.Users[cmd.UserID]; !ok {
		return ignored()
	}
	tree := st.Trees[cmd.UserID]
	if tree == nil {
		tree = &show.PersonalTree{UserID: cmd.UserID}
		st.Trees[cmd.UserID] = tree
	}
	text := cmd.Text
	tree.FigTreeResponse = &text
	return nil, true
}

// forceReconnectAll asks every client to drop and rejoin. No state mutation
// beyond the version bump that marks the command accepted.
func (c *Conductor) forceReconnectAll(st *show.State, cmd show.Command) ([]show.Event, bool) {
	return []show.Event{{Type: show.EvForceReconnect}}, true
}
