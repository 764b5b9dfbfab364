// Package config provides the configuration schema, loader, and file
// watcher for the Yggdrasil show server.
package config

import (
	"github.com/jwhector/yggdrasil/internal/show"
)

// LogLevel controls logging verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a known log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Yggdrasil.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	DAW         DAWConfig         `yaml:"daw"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Backup      BackupConfig      `yaml:"backup"`
	Show        ShowConfig        `yaml:"show"`
}

// ServerConfig holds network, logging, and heartbeat settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// HeartbeatIntervalMs is the server ping interval. Default: 15000.
	HeartbeatIntervalMs int `yaml:"heartbeat_interval_ms"`

	// HeartbeatMisses is how many consecutive missed pongs disconnect a
	// client. Default: 2.
	HeartbeatMisses int `yaml:"heartbeat_misses"`
}

// DAWConfig describes the link to the digital audio workstation.
type DAWConfig struct {
	// Enabled switches the real UDP bridge on. When false the null bridge
	// is used and nothing is transmitted.
	Enabled bool `yaml:"enabled"`

	// Host is the DAW's address (e.g., "127.0.0.1").
	Host string `yaml:"host"`

	// SendPort is the DAW's listening port for outbound messages.
	SendPort int `yaml:"send_port"`

	// ReceivePort is the local port for incoming DAW messages (beat counter,
	// acks). 0 disables the receive side.
	ReceivePort int `yaml:"receive_port"`

	// UseBeatClock drives audition advancement from DAW beat events instead
	// of wall-clock timers.
	UseBeatClock bool `yaml:"use_beat_clock"`
}

// PersistenceConfig locates the embedded store.
type PersistenceConfig struct {
	// DBPath is the SQLite database file. ":memory:" is valid for tests.
	DBPath string `yaml:"db_path"`
}

// BackupConfig controls the timestamped JSON backups.
type BackupConfig struct {
	// Dir is the backup directory, created if absent.
	Dir string `yaml:"dir"`

	// Prefix is the backup filename prefix. Default: "yggdrasil".
	Prefix string `yaml:"prefix"`

	// IntervalMs enables periodic backups when > 0.
	IntervalMs int `yaml:"interval_ms"`

	// MaxFiles is how many backups survive a prune. Default: 10.
	MaxFiles int `yaml:"max_files"`
}

// ShowConfig is the YAML form of the show definition. It converts to the
// core's [show.Config] via [ShowConfig.Core].
type ShowConfig struct {
	// SourcePath is the file the config was loaded from. Set by [Load];
	// empty for reader-based loads. The app watches it for live timing
	// edits.
	SourcePath string `yaml:"-"`

	ID       string          `yaml:"id"`
	Factions []FactionConfig `yaml:"factions"`
	Rows     []RowConfig     `yaml:"rows"`
	Timing   TimingConfig    `yaml:"timing"`
	Coup     CoupConfig      `yaml:"coup"`
}

// FactionConfig names and colours one faction.
type FactionConfig struct {
	Name   string `yaml:"name"`
	Colour string `yaml:"colour"`
}

// RowConfig describes one row of the song.
type RowConfig struct {
	Label   string         `yaml:"label"`
	Type    string         `yaml:"type"`
	Options []OptionConfig `yaml:"options"`
}

// OptionConfig describes one option within a row.
type OptionConfig struct {
	// ID is the option identifier. Must be unique within its row; reveal
	// tie-breaks compare these lexicographically.
	ID string `yaml:"id"`

	// Clip is the DAW clip reference.
	Clip string `yaml:"clip"`

	// HarmonicGroup tags options sharing harmonic material. Optional.
	HarmonicGroup string `yaml:"harmonic_group"`
}

// TimingConfig holds every timed window in milliseconds (and the beat
// budget for external-clock auditions).
type TimingConfig struct {
	AuditionPerOptionMs         int  `yaml:"audition_per_option_ms"`
	AuditionLoopsPerRow         int  `yaml:"audition_loops_per_row"`
	VotingWindowMs              int  `yaml:"voting_window_ms"`
	RevealDurationMs            int  `yaml:"reveal_duration_ms"`
	CoupWindowMs                int  `yaml:"coup_window_ms"`
	MasterLoopBeats             int  `yaml:"master_loop_beats"`
	AcceptVotesWhileAuditioning bool `yaml:"accept_votes_while_auditioning"`
}

// CoupConfig holds the coup policy knobs.
type CoupConfig struct {
	Threshold       float64 `yaml:"threshold"`
	MultiplierBonus float64 `yaml:"multiplier_bonus"`
}

// Core converts the YAML show definition into the value the conductor
// consumes.
func (sc ShowConfig) Core() show.Config {
	out := show.Config{
		ShowID: show.ShowID(sc.ID),
		Timing: show.Timing{
			AuditionPerOptionMs:         sc.Timing.AuditionPerOptionMs,
			AuditionLoopsPerRow:         sc.Timing.AuditionLoopsPerRow,
			VotingWindowMs:              sc.Timing.VotingWindowMs,
			RevealDurationMs:            sc.Timing.RevealDurationMs,
			CoupWindowMs:                sc.Timing.CoupWindowMs,
			MasterLoopBeats:             sc.Timing.MasterLoopBeats,
			AcceptVotesWhileAuditioning: sc.Timing.AcceptVotesWhileAuditioning,
		},
		Coup: show.CoupConfig{
			Threshold:       sc.Coup.Threshold,
			MultiplierBonus: sc.Coup.MultiplierBonus,
		},
	}
	for _, f := range sc.Factions {
		out.Factions = append(out.Factions, show.FactionConfig{Name: f.Name, Colour: f.Colour})
	}
	for _, r := range sc.Rows {
		rc := show.RowConfig{Label: r.Label, Type: r.Type}
		for _, o := range r.Options {
			rc.Options = append(rc.Options, show.OptionConfig{
				ID:            show.OptionID(o.ID),
				Clip:          o.Clip,
				HarmonicGroup: o.HarmonicGroup,
			})
		}
		out.Rows = append(out.Rows, rc)
	}
	return out
}
