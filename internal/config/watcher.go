package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// defaultPollInterval is how often the show file is re-checked. Polling
// (not inotify) keeps the dependency surface flat and is plenty for a
// human editing timing values between rows.
const defaultPollInterval = 5 * time.Second

// Watcher re-reads the show file while the show runs and hands edited
// timing values to the apply callback. Only the timing section is live:
// rows, factions, and network settings are fixed once the process is up,
// so edits to them are deliberately ignored until a restart.
//
// An unparseable or invalid file never reaches apply; the running show
// keeps its current timing and the error is logged.
type Watcher struct {
	path     string
	interval time.Duration
	apply    func(TimingConfig)

	mu      sync.Mutex
	applied TimingConfig
	lastMod time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WatchTiming loads the file once to seed the baseline (without calling
// apply — the initial values are already live in the show) and starts
// polling for timing edits.
func WatchTiming(path string, apply func(TimingConfig), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultPollInterval,
		apply:    apply,
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: timing watcher seed: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: timing watcher stat: %w", err)
	}
	w.applied = cfg.Show.Timing
	w.lastMod = info.ModTime()

	go w.poll()
	return w, nil
}

// Applied returns the timing values most recently handed to apply (or the
// seed values if no edit has landed yet).
func (w *Watcher) Applied() TimingConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.applied
}

// Stop ends the poll loop. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the file if its mtime moved and applies a changed timing
// section. Comparing the parsed timing struct (not file bytes) means
// edits to rows or comments cause no spurious apply.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("timing watcher: cannot stat show file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.lastMod)
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		// Mid-edit saves land here constantly; keep the running timing
		// and try again next tick.
		slog.Warn("timing watcher: show file not loadable, keeping current timing", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	w.lastMod = info.ModTime()
	changed := cfg.Show.Timing != w.applied
	if changed {
		w.applied = cfg.Show.Timing
	}
	w.mu.Unlock()

	if !changed {
		return
	}
	slog.Info("timing watcher: applying edited timing", "path", w.path)
	if w.apply != nil {
		w.apply(cfg.Show.Timing)
	}
}
