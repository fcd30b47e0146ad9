package health

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/netpulsehq/collector/internal/metrics"
)

func TestCheckerReadyConditions(t *testing.T) {
	store := metrics.NewStore()
	checker := NewChecker(store)
	checker.Track("latency", 10*time.Second)

	now := time.Unix(1000, 0).UTC()
	ready, reasons := checker.Ready(now)
	if ready {
		t.Fatalf("expected not ready before first run")
	}
	if len(reasons) != 1 || !strings.Contains(reasons[0], "has not run yet") {
		t.Fatalf("unexpected reasons: %v", reasons)
	}
	snap := store.Snapshot()
	if snap.Ready {
		t.Fatalf("expected readiness gauge to be false")
	}
	if !strings.Contains(snap.ReadyReason, "has not run yet") {
		t.Fatalf("expected readiness reason in metrics, got %q", snap.ReadyReason)
	}

	checker.ObserveRun("latency", now, nil)
	ready, _ = checker.Ready(now)
	if !ready {
		t.Fatalf("expected ready after successful run")
	}
	snap = store.Snapshot()
	if !snap.Ready || snap.ReadyReason != "" {
		t.Fatalf("expected readiness gauge true with empty reason, got %+v", snap)
	}

	// Three intervals without a success flips readiness.
	staleNow := now.Add(31 * time.Second)
	ready, reasons = checker.Ready(staleNow)
	if ready {
		t.Fatalf("expected not ready when stale")
	}
	if !strings.Contains(reasons[0], "stale") {
		t.Fatalf("expected stale reason, got %v", reasons)
	}

	// A failure after the last success surfaces even inside the window.
	checker.ObserveRun("latency", now.Add(10*time.Second), nil)
	checker.ObserveRun("latency", now.Add(15*time.Second), errors.New("fping: exit status 2"))
	ready, reasons = checker.Ready(now.Add(16 * time.Second))
	if ready {
		t.Fatalf("expected not ready after run failure")
	}
	if !strings.Contains(reasons[0], "failing: fping: exit status 2") {
		t.Fatalf("expected failure reason, got %v", reasons)
	}

	// Success clears the failure state.
	checker.ObserveRun("latency", now.Add(20*time.Second), nil)
	ready, _ = checker.Ready(now.Add(21 * time.Second))
	if !ready {
		t.Fatalf("expected ready after recovery")
	}
}

func TestCheckerFailingBeforeFirstSuccess(t *testing.T) {
	store := metrics.NewStore()
	checker := NewChecker(store)
	checker.Track("path", time.Minute)

	ref := time.Unix(2000, 0).UTC()
	checker.ObserveRun("path", ref, errors.New("mtr not found"))
	ready, reasons := checker.Ready(ref)
	if ready {
		t.Fatalf("expected not ready when only failures observed")
	}
	if !strings.Contains(reasons[0], "failing: mtr not found") {
		t.Fatalf("unexpected reasons: %v", reasons)
	}
}

func TestCheckerKeyLimit(t *testing.T) {
	store := metrics.NewStore()
	checker := NewChecker(store)
	checker.Track("latency", time.Minute)

	ref := time.Unix(3000, 0).UTC()
	checker.ObserveRun("latency", ref, nil)
	checker.SetKeyLimit(2)

	store.StoreRecorder().ObserveKeyCount(3)
	ready, reasons := checker.Ready(ref)
	if ready {
		t.Fatalf("expected not ready above key limit")
	}
	if !strings.Contains(reasons[0], "key count 3 exceeds limit 2") {
		t.Fatalf("unexpected reasons: %v", reasons)
	}

	store.StoreRecorder().ObserveKeyCount(2)
	if ready, _ := checker.Ready(ref); !ready {
		t.Fatalf("expected ready at the limit")
	}
}

func TestCheckerMultipleProbesSortedReasons(t *testing.T) {
	checker := NewChecker(nil)
	checker.Track("alpha", time.Second)
	checker.Track("beta", time.Second)

	ready, reasons := checker.Ready(time.Unix(0, 0))
	if ready {
		t.Fatalf("expected not ready with two pending probes")
	}
	if len(reasons) != 2 {
		t.Fatalf("expected 2 reasons got %d", len(reasons))
	}
	if !strings.Contains(reasons[0], "alpha") || !strings.Contains(reasons[1], "beta") {
		t.Fatalf("expected deterministic reason order, got %v", reasons)
	}
}
