package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jwhector/yggdrasil/internal/show"
	"gopkg.in/yaml.v3"
)

// Defaults applied by [applyDefaults] when the file leaves a knob unset.
const (
	defaultListenAddr          = ":8080"
	defaultHeartbeatIntervalMs = 15_000
	defaultHeartbeatMisses     = 2
	defaultAuditionPerOptionMs = 8_000
	defaultAuditionLoops       = 1
	defaultVotingWindowMs      = 30_000
	defaultRevealDurationMs    = 10_000
	defaultCoupWindowMs        = 15_000
	defaultMasterLoopBeats     = 16
	defaultCoupThreshold       = 0.5
	defaultCoupBonus           = 0.5
	defaultBackupPrefix        = "yggdrasil"
	defaultBackupMaxFiles      = 10
	defaultDBPath              = "yggdrasil.db"
)

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	cfg.Show.SourcePath = path
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides and defaults, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override the network and
// operational knobs without editing the show file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("YGG_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("YGG_DAW_HOST"); v != "" {
		cfg.DAW.Host = v
	}
	if v, ok := envInt("YGG_DAW_SEND_PORT"); ok {
		cfg.DAW.SendPort = v
	}
	if v, ok := envInt("YGG_DAW_RECV_PORT"); ok {
		cfg.DAW.ReceivePort = v
	}
	if v := os.Getenv("YGG_DAW_ENABLED"); v != "" {
		cfg.DAW.Enabled = v == "1" || v == "true"
	}
	if v := os.Getenv("YGG_ENGINE_CLOCK"); v != "" {
		cfg.DAW.UseBeatClock = v == "beat"
	}
	if v := os.Getenv("YGG_DB_PATH"); v != "" {
		cfg.Persistence.DBPath = v
	}
	if v := os.Getenv("YGG_BACKUP_DIR"); v != "" {
		cfg.Backup.Dir = v
	}
	if v, ok := envInt("YGG_BACKUP_INTERVAL"); ok {
		cfg.Backup.IntervalMs = v
	}
	if v, ok := envInt("YGG_BACKUP_MAX"); ok {
		cfg.Backup.MaxFiles = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// applyDefaults fills every unset knob. The conductor never assumes these
// values — they exist only here.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.HeartbeatIntervalMs <= 0 {
		cfg.Server.HeartbeatIntervalMs = defaultHeartbeatIntervalMs
	}
	if cfg.Server.HeartbeatMisses <= 0 {
		cfg.Server.HeartbeatMisses = defaultHeartbeatMisses
	}

	if cfg.Persistence.DBPath == "" {
		cfg.Persistence.DBPath = defaultDBPath
	}
	if cfg.Backup.Prefix == "" {
		cfg.Backup.Prefix = defaultBackupPrefix
	}
	if cfg.Backup.MaxFiles <= 0 {
		cfg.Backup.MaxFiles = defaultBackupMaxFiles
	}

	t := &cfg.Show.Timing
	if t.AuditionPerOptionMs <= 0 {
		t.AuditionPerOptionMs = defaultAuditionPerOptionMs
	}
	if t.AuditionLoopsPerRow <= 0 {
		t.AuditionLoopsPerRow = defaultAuditionLoops
	}
	if t.VotingWindowMs <= 0 {
		t.VotingWindowMs = defaultVotingWindowMs
	}
	if t.RevealDurationMs <= 0 {
		t.RevealDurationMs = defaultRevealDurationMs
	}
	if t.CoupWindowMs <= 0 {
		t.CoupWindowMs = defaultCoupWindowMs
	}
	if t.MasterLoopBeats <= 0 {
		t.MasterLoopBeats = defaultMasterLoopBeats
	}

	if cfg.Show.Coup.Threshold <= 0 {
		cfg.Show.Coup.Threshold = defaultCoupThreshold
	}
	if cfg.Show.Coup.MultiplierBonus <= 0 {
		cfg.Show.Coup.MultiplierBonus = defaultCoupBonus
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.DAW.Enabled {
		if cfg.DAW.Host == "" {
			errs = append(errs, errors.New("daw.host is required when daw.enabled is true"))
		}
		if cfg.DAW.SendPort <= 0 || cfg.DAW.SendPort > 65535 {
			errs = append(errs, fmt.Errorf("daw.send_port %d is out of range", cfg.DAW.SendPort))
		}
		if cfg.DAW.ReceivePort < 0 || cfg.DAW.ReceivePort > 65535 {
			errs = append(errs, fmt.Errorf("daw.receive_port %d is out of range", cfg.DAW.ReceivePort))
		}
	}

	if cfg.Show.ID == "" {
		errs = append(errs, errors.New("show.id is required"))
	}
	if len(cfg.Show.Factions) != show.NumFactions {
		errs = append(errs, fmt.Errorf("show.factions must list exactly %d factions, got %d", show.NumFactions, len(cfg.Show.Factions)))
	}
	for i, f := range cfg.Show.Factions {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("show.factions[%d].name is required", i))
		}
	}

	if len(cfg.Show.Rows) == 0 {
		errs = append(errs, errors.New("show.rows must not be empty"))
	}
	for i, r := range cfg.Show.Rows {
		prefix := fmt.Sprintf("show.rows[%d]", i)
		if len(r.Options) != show.OptionsPerRow {
			errs = append(errs, fmt.Errorf("%s must list exactly %d options, got %d", prefix, show.OptionsPerRow, len(r.Options)))
		}
		seen := make(map[string]int, len(r.Options))
		for j, o := range r.Options {
			if o.ID == "" {
				errs = append(errs, fmt.Errorf("%s.options[%d].id is required", prefix, j))
				continue
			}
			if prev, dup := seen[o.ID]; dup {
				errs = append(errs, fmt.Errorf("%s.options[%d].id %q duplicates options[%d]", prefix, j, o.ID, prev))
			}
			seen[o.ID] = j
		}
	}

	if th := cfg.Show.Coup.Threshold; th <= 0 || th > 1 {
		errs = append(errs, fmt.Errorf("show.coup.threshold %.2f is out of range (0, 1]", th))
	}
	if cfg.Show.Coup.MultiplierBonus < 0 {
		errs = append(errs, fmt.Errorf("show.coup.multiplier_bonus %.2f must not be negative", cfg.Show.Coup.MultiplierBonus))
	}

	return errors.Join(errs...)
}
