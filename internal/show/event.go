package show

// EventType enumerates every event the conductor emits. Events are the
// conductor's only output besides the state mutation itself; they drive
// persistence hints, broadcast side channels, audio routing, and timing.
type EventType string

const (
	EvUserJoined      EventType = "USER_JOINED"
	EvUserLeft        EventType = "USER_LEFT"
	EvUserReconnected EventType = "USER_RECONNECTED"
	EvStateSync       EventType = "STATE_SYNC"

	EvFactionAssigned  EventType = "FACTION_ASSIGNED"
	EvFactionsAssigned EventType = "FACTIONS_ASSIGNED"

	EvShowPhaseChanged      EventType = "SHOW_PHASE_CHANGED"
	EvRowPhaseChanged       EventType = "ROW_PHASE_CHANGED"
	EvAuditionOptionChanged EventType = "AUDITION_OPTION_CHANGED"

	EvVoteReceived EventType = "VOTE_RECEIVED"

	EvCoupMeterUpdate EventType = "COUP_METER_UPDATE"
	EvCoupTriggered   EventType = "COUP_TRIGGERED"

	EvTieDetected EventType = "TIE_DETECTED"
	EvTieResolved EventType = "TIE_RESOLVED"
	EvReveal      EventType = "REVEAL"
	EvPathsUpdated EventType = "PATHS_UPDATED"

	EvFinalePopularSong EventType = "FINALE_POPULAR_SONG"
	EvFinaleCursor      EventType = "FINALE_CURSOR"

	EvAudioCue       EventType = "AUDIO_CUE"
	EvShowReset      EventType = "SHOW_RESET"
	EvForceReconnect EventType = "FORCE_RECONNECT"

	EvError EventType = "ERROR"
)

// Event is one conductor output. Payload is a typed struct from this file
// (or nil for marker events such as FORCE_RECONNECT).
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// ErrorKind classifies rejected commands and edge failures.
type ErrorKind string

const (
	ErrUnknownCommand ErrorKind = "UnknownCommand"
	ErrInvalidPhase   ErrorKind = "InvalidPhase"
	ErrMissingUser    ErrorKind = "MissingUser"
	ErrUserNoFaction  ErrorKind = "UserNoFaction"
	ErrPersistence    ErrorKind = "PersistenceError"
	ErrTransport      ErrorKind = "TransportError"
	ErrCodec          ErrorKind = "CodecError"
)

// ErrorPayload reports a rejected command to the controller.
type ErrorPayload struct {
	Kind    ErrorKind   `json:"kind"`
	Message string      `json:"message"`
	Command CommandType `json:"command,omitempty"`
}

// UserPayload accompanies join/leave/reconnect events.
type UserPayload struct {
	UserID  UserID     `json:"userId"`
	Seat    SeatID     `json:"seatId,omitempty"`
	Faction *FactionID `json:"factionId,omitempty"`
}

// FactionAssignedPayload reports a single (late) assignment.
type FactionAssignedPayload struct {
	UserID    UserID    `json:"userId"`
	FactionID FactionID `json:"factionId"`
}

// FactionsAssignedPayload reports the full lobby assignment.
type FactionsAssignedPayload struct {
	// Assignments is ordered by user id for determinism.
	Assignments []FactionAssignedPayload `json:"assignments"`
}

// ShowPhasePayload reports a show phase transition.
type ShowPhasePayload struct {
	From ShowPhase `json:"from"`
	To   ShowPhase `json:"to"`
}

// RowPhasePayload reports a row phase transition.
type RowPhasePayload struct {
	RowIndex int      `json:"rowIndex"`
	From     RowPhase `json:"from"`
	To       RowPhase `json:"to"`
	Attempt  int      `json:"attempt"`
}

// AuditionPayload reports the option now playing during an audition.
type AuditionPayload struct {
	RowIndex    int      `json:"rowIndex"`
	StepIndex   int      `json:"stepIndex"`
	OptionIndex int      `json:"optionIndex"`
	OptionID    OptionID `json:"optionId"`
}

// VotePayload acknowledges a recorded vote.
type VotePayload struct {
	UserID   UserID `json:"userId"`
	RowIndex int    `json:"rowIndex"`
	Attempt  int    `json:"attempt"`
	Replaced bool   `json:"replaced"`
}

// CoupMeterPayload reports coup progress for one faction.
type CoupMeterPayload struct {
	FactionID FactionID `json:"factionId"`
	Votes     int       `json:"votes"`
	Needed    int       `json:"needed"`
	Progress  float64   `json:"progress"`
}

// CoupTriggeredPayload reports a fired coup.
type CoupTriggeredPayload struct {
	FactionID  FactionID `json:"factionId"`
	RowIndex   int       `json:"rowIndex"`
	Attempt    int       `json:"attempt"`
	Multiplier float64   `json:"multiplier"`
	Forced     bool      `json:"forced"`
}

// FactionResult is one faction's slice of a reveal.
type FactionResult struct {
	FactionID         FactionID `json:"factionId"`
	VoteCount         int       `json:"voteCount"`
	RawCoherence      float64   `json:"rawCoherence"`
	Multiplier        float64   `json:"multiplier"`
	WeightedCoherence float64   `json:"weightedCoherence"`
	BlocOption        OptionID  `json:"blocOption,omitempty"`
	BlocSize          int       `json:"blocSize"`
}

// PopularVoteSummary is the personal-vote side of a reveal.
type PopularVoteSummary struct {
	WinningOption       OptionID         `json:"winningOption"`
	Counts              []OptionCount    `json:"counts"`
	DivergedFromFaction bool             `json:"divergedFromFaction"`
}

// OptionCount pairs an option with its vote count, ordered by option id.
type OptionCount struct {
	OptionID OptionID `json:"optionId"`
	Count    int      `json:"count"`
}

// TiePayload reports the tied faction set before random resolution.
type TiePayload struct {
	RowIndex  int         `json:"rowIndex"`
	Factions  []FactionID `json:"factions"`
	Coherence float64     `json:"coherence"`
}

// TieResolvedPayload reports the randomly chosen winner.
type TieResolvedPayload struct {
	RowIndex int       `json:"rowIndex"`
	Winner   FactionID `json:"winner"`
}

// RevealPayload is the compound reveal result for a row attempt.
type RevealPayload struct {
	RowIndex       int                `json:"rowIndex"`
	Attempt        int                `json:"attempt"`
	FactionResults []FactionResult    `json:"factionResults"`
	Tie            *TiePayload        `json:"tie,omitempty"`
	WinningFaction FactionID          `json:"winningFactionId"`
	WinningOption  OptionID           `json:"winningOptionId"`
	PopularVote    PopularVoteSummary `json:"popularVote"`
	Skipped        bool               `json:"skipped,omitempty"`
}

// PathsPayload carries the updated dual paths after a commit.
type PathsPayload struct {
	FactionPath []OptionID `json:"factionPath"`
	PopularPath []OptionID `json:"popularPath"`
}

// FinaleSongPayload carries the popular path on finale entry.
type FinaleSongPayload struct {
	PopularPath []OptionID `json:"popularPath"`
}

// FinaleCursorPayload reports finale timeline progress.
type FinaleCursorPayload struct {
	Cursor int  `json:"cursor"`
	Done   bool `json:"done"`
}

// CueKind enumerates abstract audio cues; the audio router translates them
// into DAW wire messages.
type CueKind string

const (
	CuePlayOption        CueKind = "play_option"
	CueStopOption        CueKind = "stop_option"
	CueCommitLayer       CueKind = "commit_layer"
	CueUncommitLayer     CueKind = "uncommit_layer"
	CuePlayTimeline      CueKind = "play_timeline"
	CueTransportStop     CueKind = "transport_stop"
	CueTransportContinue CueKind = "transport_continue"
	CueResetAll          CueKind = "reset_all"
)

// AudioCue is the payload of an AUDIO_CUE event.
type AudioCue struct {
	Kind CueKind `json:"kind"`

	// Row and Option target the single-row cues.
	Row    int      `json:"row,omitempty"`
	Option OptionID `json:"option,omitempty"`

	// Path targets play_timeline; UserID marks an individual finale
	// timeline as opposed to the popular-path playback.
	Path   []OptionID `json:"path,omitempty"`
	UserID UserID     `json:"userId,omitempty"`
}

// CueOf extracts the audio cue from an event, or nil.
func CueOf(ev Event) *AudioCue {
	if ev.Type != EvAudioCue {
		return nil
	}
	if cue, ok := ev.Payload.(AudioCue); ok {
		return &cue
	}
	return nil
}
