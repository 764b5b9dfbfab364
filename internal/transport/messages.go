// Package transport is the realtime client fabric: websocket connections
// by role, socket-bound identity, heartbeat supervision, and the full
// filtered state broadcast that follows every accepted command.
package transport

import (
	"encoding/json"

	"github.com/jwhector/yggdrasil/internal/show"
)

// Role is a connection's projection class.
type Role string

const (
	RoleController Role = "controller"
	RoleProjector  Role = "projector"
	RoleAudience   Role = "audience"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleController, RoleProjector, RoleAudience:
		return true
	}
	return false
}

// Client → server message types.
const (
	MsgJoin            = "join"
	MsgReconnectUser   = "reconnect_user"
	MsgVote            = "vote"
	MsgCoupVote        = "coup_vote"
	MsgFigTreeResponse = "fig_tree_response"
	MsgCommand         = "command"
	MsgPong            = "pong"
)

// Server → client message types.
const (
	MsgStateSync      = "state_sync"
	MsgIdentity       = "identity"
	MsgError          = "error"
	MsgPing           = "ping"
	MsgForceReconnect = "force_reconnect"
)

// ClientMessage is the envelope for everything a client sends. Fields
// beyond Type are populated per message type.
type ClientMessage struct {
	Type string `json:"type"`

	// join
	UserID show.UserID `json:"userId,omitempty"`
	Mode   Role        `json:"mode,omitempty"`
	SeatID show.SeatID `json:"seatId,omitempty"`

	// reconnect_user
	LastVersion int `json:"lastVersion,omitempty"`

	// vote
	FactionVote  show.OptionID `json:"factionVote,omitempty"`
	PersonalVote show.OptionID `json:"personalVote,omitempty"`

	// fig_tree_response
	Text string `json:"text,omitempty"`

	// command (controller only)
	Command *show.Command `json:"command,omitempty"`
}

// ServerMessage is the envelope for everything the server pushes.
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// IdentityPayload carries the socket-bound user id back to the client.
type IdentityPayload struct {
	UserID show.UserID `json:"userId"`
}

// ErrorMessagePayload reports a failed command back to its issuer.
type ErrorMessagePayload struct {
	Message string           `json:"message"`
	Command show.CommandType `json:"command,omitempty"`
}

// encode marshals a server message, panicking on programmer error (every
// payload in this package is marshal-safe by construction).
func encode(m ServerMessage) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		panic("transport: marshal server message: " + err.Error())
	}
	return data
}
