package persist

import (
	"sync"
	"time"
)

// writeGuard degrades snapshot persistence gracefully when the disk is
// failing. The show must keep running from memory: after a few consecutive
// failed snapshot writes the guard stops admitting writes, so the command
// path pays for one cheap check instead of a doomed SQLite transaction per
// command. After a cooldown the next write goes through as a probe; if it
// lands, snapshotting resumes and the guard reports how many versions the
// on-disk snapshot missed, so the operator knows how stale a crash
// recovery would have been.
type writeGuard struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu          sync.Mutex
	consecutive int
	open        bool
	openedAt    time.Time
	skipped     int
	probing     bool
}

func newWriteGuard(threshold int, cooldown time.Duration) *writeGuard {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 10 * time.Second
	}
	return &writeGuard{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// admit reports whether the next snapshot write should be attempted.
// While open it counts the skipped snapshot instead, until the cooldown
// elapses; the first admitted write after that is the probe.
func (g *writeGuard) admit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.open {
		return true
	}
	if g.now().Sub(g.openedAt) >= g.cooldown && !g.probing {
		g.probing = true
		return true
	}
	g.skipped++
	return false
}

// succeeded records a landed write. It returns whether this write closed
// an open guard, and how many snapshots were skipped while it was open.
func (g *writeGuard) succeeded() (recovered bool, skipped int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.consecutive = 0
	if !g.open {
		return false, 0
	}
	skipped = g.skipped
	g.open = false
	g.probing = false
	g.skipped = 0
	return true, skipped
}

// failed records a failed write and reports whether this failure opened
// the guard. A failed probe re-opens it and restarts the cooldown.
func (g *writeGuard) failed() (opened bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open {
		// The probe failed; wait out another cooldown.
		g.probing = false
		g.openedAt = g.now()
		return false
	}
	g.consecutive++
	if g.consecutive < g.threshold {
		return false
	}
	g.open = true
	g.openedAt = g.now()
	g.skipped = 0
	return true
}

// stale reports how many snapshots have been skipped since the guard
// opened. Zero while closed.
func (g *writeGuard) stale() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.skipped
}
