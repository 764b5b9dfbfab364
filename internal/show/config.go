package show

// Config is the validated show configuration the core consumes. Loading and
// validation of the YAML file live in internal/config; by the time a Config
// reaches this package it is structurally sound (exactly four factions,
// four options per row).
type Config struct {
	ShowID   ShowID          `json:"showId"`
	Rows     []RowConfig     `json:"rows"`
	Factions []FactionConfig `json:"factions"`
	Timing   Timing          `json:"timing"`
	Coup     CoupConfig      `json:"coup"`
}

// RowConfig describes one row of the song.
type RowConfig struct {
	Label   string         `json:"label"`
	Type    string         `json:"type"`
	Options []OptionConfig `json:"options"`
}

// OptionConfig describes one option within a row.
type OptionConfig struct {
	ID            OptionID `json:"id"`
	Clip          string   `json:"clip"`
	HarmonicGroup string   `json:"harmonicGroup,omitempty"`
}

// FactionConfig names and colours one faction.
type FactionConfig struct {
	Name   string `json:"name"`
	Colour string `json:"colour"`
}

// Timing holds every timed window of the show. The conductor and timing
// engine read these values and never assume defaults — defaults are applied
// by the config loader.
type Timing struct {
	// AuditionPerOptionMs is how long each option plays during an audition
	// step in wall-clock fallback mode.
	AuditionPerOptionMs int `json:"auditionPerOptionMs" yaml:"audition_per_option_ms"`

	// AuditionLoopsPerRow is how many full cycles through the four options
	// an audition runs before voting opens.
	AuditionLoopsPerRow int `json:"auditionLoopsPerRow" yaml:"audition_loops_per_row"`

	VotingWindowMs   int `json:"votingWindowMs" yaml:"voting_window_ms"`
	RevealDurationMs int `json:"revealDurationMs" yaml:"reveal_duration_ms"`
	CoupWindowMs     int `json:"coupWindowMs" yaml:"coup_window_ms"`

	// MasterLoopBeats is the audition length in beats when the external
	// musical clock drives phase advancement.
	MasterLoopBeats int `json:"masterLoopBeats" yaml:"master_loop_beats"`

	// AcceptVotesWhileAuditioning selects the combined audition-and-vote
	// flow (true) or the strict separate flow (false).
	AcceptVotesWhileAuditioning bool `json:"acceptVotesWhileAuditioning" yaml:"accept_votes_while_auditioning"`
}

// CoupConfig holds the coup policy knobs.
type CoupConfig struct {
	// Threshold is the fraction of a faction's connected members that must
	// vote before the coup fires.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// MultiplierBonus is added to 1.0 to form the triggering faction's
	// coherence multiplier on the restarted row.
	MultiplierBonus float64 `json:"multiplierBonus" yaml:"multiplier_bonus"`
}

// TimingOverride is a partial Timing; nil fields are left untouched by
// Merge. Carried by the SET_TIMING command.
type TimingOverride struct {
	AuditionPerOptionMs         *int  `json:"auditionPerOptionMs,omitempty"`
	AuditionLoopsPerRow         *int  `json:"auditionLoopsPerRow,omitempty"`
	VotingWindowMs              *int  `json:"votingWindowMs,omitempty"`
	RevealDurationMs            *int  `json:"revealDurationMs,omitempty"`
	CoupWindowMs                *int  `json:"coupWindowMs,omitempty"`
	MasterLoopBeats             *int  `json:"masterLoopBeats,omitempty"`
	AcceptVotesWhileAuditioning *bool `json:"acceptVotesWhileAuditioning,omitempty"`
}

// Merge applies the non-nil fields of o onto t.
func (t *Timing) Merge(o TimingOverride) {
	if o.AuditionPerOptionMs != nil {
		t.AuditionPerOptionMs = *o.AuditionPerOptionMs
	}
	if o.AuditionLoopsPerRow != nil {
		t.AuditionLoopsPerRow = *o.AuditionLoopsPerRow
	}
	if o.VotingWindowMs != nil {
		t.VotingWindowMs = *o.VotingWindowMs
	}
	if o.RevealDurationMs != nil {
		t.RevealDurationMs = *o.RevealDurationMs
	}
	if o.CoupWindowMs != nil {
		t.CoupWindowMs = *o.CoupWindowMs
	}
	if o.MasterLoopBeats != nil {
		t.MasterLoopBeats = *o.MasterLoopBeats
	}
	if o.AcceptVotesWhileAuditioning != nil {
		t.AcceptVotesWhileAuditioning = *o.AcceptVotesWhileAuditioning
	}
}

// NewState builds the initial lobby state from a validated config.
func NewState(cfg Config, now Millis) *State {
	st := &State{
		ID:              cfg.ShowID,
		Version:         0,
		LastUpdated:     now,
		Phase:           PhaseLobby,
		CurrentRowIndex: 0,
		Users:           UserMap{},
		Trees:           TreeMap{},
		Config:          cfg,
	}
	for i, rc := range cfg.Rows {
		row := &Row{
			Index: i,
			Label: rc.Label,
			Type:  rc.Type,
			Phase: RowPending,
		}
		for j, oc := range rc.Options {
			row.Options = append(row.Options, Option{
				ID:            oc.ID,
				Index:         j,
				Clip:          oc.Clip,
				HarmonicGroup: oc.HarmonicGroup,
			})
		}
		st.Rows = append(st.Rows, row)
	}
	for i, fc := range cfg.Factions {
		st.Factions = append(st.Factions, &Faction{
			ID:             FactionID(i),
			Name:           fc.Name,
			Colour:         fc.Colour,
			CoupMultiplier: 1.0,
			CoupVotes:      UserSet{},
		})
	}
	return st
}
