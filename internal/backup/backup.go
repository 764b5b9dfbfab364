// Package backup writes timestamped JSON state files at phase boundaries,
// on a periodic ticker, and at shutdown, pruning old files so the backup
// directory stays bounded.
//
// Backup files are full state snapshots loadable through IMPORT_STATE, so
// an operator can rewind a broken show to any recent boundary.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/jwhector/yggdrasil/internal/observe"
	"github.com/jwhector/yggdrasil/internal/show"
	"go.opentelemetry.io/otel/metric"
)

// DefaultMaxFiles bounds the backup directory when the config does not.
const DefaultMaxFiles = 10

// Snapshotter supplies the current state. Implemented by the engine.
type Snapshotter interface {
	Snapshot() *show.State
}

// Manager writes and prunes backup files. Safe for concurrent use; writes
// are serialised by an internal mutex so prune never races a write.
type Manager struct {
	dir      string
	prefix   string
	maxFiles int
	source   Snapshotter
	metrics  *observe.Metrics

	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a [Manager].
type Option func(*Manager)

// WithMaxFiles caps how many backup files survive a prune.
func WithMaxFiles(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxFiles = n
		}
	}
}

// WithMetrics records backup counters on the given instruments.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// New creates a Manager writing into dir (created if absent).
func New(dir, prefix string, source Snapshotter, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create dir %q: %w", dir, err)
	}
	m := &Manager{
		dir:      dir,
		prefix:   prefix,
		maxFiles: DefaultMaxFiles,
		source:   source,
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Write snapshots the current state into a new backup file and prunes.
// reason labels the trigger (phase, periodic, shutdown) for logs/metrics.
func (m *Manager) Write(ctx context.Context, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.source.Snapshot()
	data, err := show.Serialise(st)
	if err != nil {
		return err
	}

	name := m.filename(st, time.Now().UTC())
	path := filepath.Join(m.dir, name)

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("backup: create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			slog.Debug("cleanup pending backup file", "err", err)
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("backup: write: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("backup: atomically replace: %w", err)
	}

	slog.Info("backup written", "file", name, "version", st.Version, "reason", reason)
	if m.metrics != nil {
		m.metrics.BackupsWritten.Add(ctx, 1, metric.WithAttributes(observe.Attr("reason", reason)))
	}

	if err := m.prune(); err != nil {
		slog.Warn("backup prune failed", "err", err)
	}
	return nil
}

// filename builds {prefix}-{showId}-{timestamp}-v{version}.json with the
// ':' and '.' of the ISO timestamp replaced so the name is path-safe.
func (m *Manager) filename(st *show.State, now time.Time) string {
	ts := now.Format(time.RFC3339)
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	return fmt.Sprintf("%s-%s-%s-v%d.json", m.prefix, st.ID, ts, st.Version)
}

// prune keeps the maxFiles newest backups by file-modification time.
func (m *Manager) prune() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("backup: list dir: %w", err)
	}

	type candidate struct {
		name  string
		mtime time.Time
	}
	var files []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), m.prefix+"-") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{name: e.Name(), mtime: info.ModTime()})
	}
	if len(files) <= m.maxFiles {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mtime.After(files[j].mtime) })
	for _, f := range files[m.maxFiles:] {
		if err := os.Remove(filepath.Join(m.dir, f.name)); err != nil {
			slog.Warn("failed to remove old backup", "file", f.name, "err", err)
		}
	}
	return nil
}

// Load reads a backup file back into a state, ready for IMPORT_STATE.
func Load(path string) (*show.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("backup: read %q: %w", path, err)
	}
	return show.Deserialise(data)
}

// RunPeriodic writes a backup every interval until ctx is cancelled or
// [Manager.Stop] is called. interval <= 0 disables the ticker.
func (m *Manager) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			if err := m.Write(ctx, "periodic"); err != nil {
				slog.Warn("periodic backup failed", "err", err)
			}
		}
	}
}

// Stop terminates the periodic loop.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// OnCommit implements the engine sink contract: entering running or finale
// is a phase boundary worth a durable file.
func (m *Manager) OnCommit(st *show.State, cmd show.Command, events []show.Event) {
	for _, ev := range events {
		if ev.Type != show.EvShowPhaseChanged {
			continue
		}
		p, ok := ev.Payload.(show.ShowPhasePayload)
		if !ok {
			continue
		}
		if p.To == show.PhaseRunning || p.To == show.PhaseFinale {
			// Write in the background: backups are durable-but-lazy and must
			// not extend the command path.
			go func() {
				if err := m.Write(context.Background(), "phase"); err != nil {
					slog.Warn("phase backup failed", "err", err)
				}
			}()
			return
		}
	}
}
