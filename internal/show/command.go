package show

// CommandType enumerates every command the conductor accepts.
type CommandType string

const (
	CmdUserConnect           CommandType = "USER_CONNECT"
	CmdUserDisconnect        CommandType = "USER_DISCONNECT"
	CmdUserReconnect         CommandType = "USER_RECONNECT"
	CmdSubmitFigTreeResponse CommandType = "SUBMIT_FIG_TREE_RESPONSE"
	CmdAssignFactions        CommandType = "ASSIGN_FACTIONS"
	CmdStartShow             CommandType = "START_SHOW"
	CmdAdvancePhase          CommandType = "ADVANCE_PHASE"
	CmdSubmitVote            CommandType = "SUBMIT_VOTE"
	CmdSubmitCoupVote        CommandType = "SUBMIT_COUP_VOTE"
	CmdPause                 CommandType = "PAUSE"
	CmdResume                CommandType = "RESUME"
	CmdSkipRow               CommandType = "SKIP_ROW"
	CmdRestartRow            CommandType = "RESTART_ROW"
	CmdTriggerCoup           CommandType = "TRIGGER_COUP"
	CmdSetTiming             CommandType = "SET_TIMING"
	CmdForceFinale           CommandType = "FORCE_FINALE"
	CmdResetToLobby          CommandType = "RESET_TO_LOBBY"
	CmdImportState           CommandType = "IMPORT_STATE"
	CmdForceReconnectAll     CommandType = "FORCE_RECONNECT_ALL"
)

// Command is the single envelope for every conductor command. Fields beyond
// Type are populated per command; unused fields are zero. The transport
// layer overwrites UserID from the socket-bound identity before dispatch.
type Command struct {
	Type CommandType `json:"type"`

	UserID UserID `json:"userId,omitempty"`
	Seat   SeatID `json:"seatId,omitempty"`

	// ExistingFaction carries a reconnecting client's prior faction on
	// USER_CONNECT so a snapshot-restored show can rebind it.
	ExistingFaction *FactionID `json:"existingFaction,omitempty"`

	// LastVersion is the client's last-seen state version on USER_RECONNECT.
	// Informational: the server always resyncs full state.
	LastVersion int `json:"lastVersion,omitempty"`

	// Text is the lobby prompt response for SUBMIT_FIG_TREE_RESPONSE.
	Text string `json:"text,omitempty"`

	FactionVote  OptionID `json:"factionVote,omitempty"`
	PersonalVote OptionID `json:"personalVote,omitempty"`

	// FactionID targets TRIGGER_COUP.
	FactionID *FactionID `json:"factionId,omitempty"`

	// Timing carries the partial override for SET_TIMING.
	Timing *TimingOverride `json:"timing,omitempty"`

	// PreserveUsers keeps users and personal trees across RESET_TO_LOBBY.
	PreserveUsers bool `json:"preserveUsers,omitempty"`

	// Import is the snapshot for IMPORT_STATE.
	Import *State `json:"state,omitempty"`

	// At is the command's arrival time, stamped by the serialiser.
	At Millis `json:"-"`
}
