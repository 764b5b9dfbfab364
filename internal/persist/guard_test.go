package persist

import (
	"testing"
	"time"
)

// guardAt returns a guard with a controllable clock.
func guardAt(threshold int, cooldown time.Duration) (*writeGuard, *time.Time) {
	g := newWriteGuard(threshold, cooldown)
	now := time.UnixMilli(0)
	g.now = func() time.Time { return now }
	return g, &now
}

func TestGuardStaysClosedBelowThreshold(t *testing.T) {
	g, _ := guardAt(3, time.Minute)

	for i := 0; i < 2; i++ {
		if !g.admit() {
			t.Fatalf("write %d refused while closed", i)
		}
		if g.failed() {
			t.Fatalf("guard opened after %d failures, threshold is 3", i+1)
		}
	}

	// A landed write wipes the failure streak; two more failures must not
	// reach the threshold.
	g.admit()
	g.succeeded()
	g.admit()
	if g.failed() {
		t.Fatal("guard opened with the streak reset")
	}
}

func TestGuardOpensAndSkipsSnapshots(t *testing.T) {
	g, _ := guardAt(2, time.Minute)

	g.admit()
	g.failed()
	g.admit()
	if !g.failed() {
		t.Fatal("second consecutive failure did not open the guard")
	}

	// Every command during the outage is a skipped snapshot, counted so
	// the operator can judge how stale the on-disk state is.
	for i := 0; i < 5; i++ {
		if g.admit() {
			t.Fatalf("write %d admitted during cooldown", i)
		}
	}
	if got := g.stale(); got != 5 {
		t.Errorf("stale snapshots = %d, want 5", got)
	}
}

func TestGuardProbesAfterCooldown(t *testing.T) {
	g, now := guardAt(1, 30*time.Second)

	g.admit()
	g.failed()
	if g.admit() {
		t.Fatal("admitted before the cooldown elapsed")
	}

	*now = now.Add(30 * time.Second)
	if !g.admit() {
		t.Fatal("probe refused after the cooldown")
	}
	// Only one probe at a time: further writes keep skipping until the
	// probe resolves.
	if g.admit() {
		t.Fatal("second concurrent probe admitted")
	}

	recovered, skipped := g.succeeded()
	if !recovered {
		t.Fatal("successful probe did not close the guard")
	}
	if skipped != 2 {
		t.Errorf("missed snapshots = %d, want the 2 skipped during the outage", skipped)
	}
	if !g.admit() {
		t.Fatal("write refused after recovery")
	}
}

func TestGuardFailedProbeRestartsCooldown(t *testing.T) {
	g, now := guardAt(1, 30*time.Second)

	g.admit()
	g.failed()
	*now = now.Add(30 * time.Second)
	if !g.admit() {
		t.Fatal("probe refused")
	}
	if g.failed() {
		t.Error("failed probe reported as a fresh opening")
	}

	// The clock has not moved since the failed probe; still waiting.
	if g.admit() {
		t.Fatal("admitted right after a failed probe")
	}
	*now = now.Add(30 * time.Second)
	if !g.admit() {
		t.Fatal("second probe refused after another cooldown")
	}
}

func TestGuardSuccessWhileClosedIsQuiet(t *testing.T) {
	g, _ := guardAt(3, time.Minute)
	g.admit()
	recovered, skipped := g.succeeded()
	if recovered || skipped != 0 {
		t.Errorf("recovered=%v skipped=%d for a routine write, want false/0", recovered, skipped)
	}
}
