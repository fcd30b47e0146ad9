package metrics

import (
	"strings"
	"testing"
)

func TestStoreCountersAccumulate(t *testing.T) {
	store := NewStore()
	probes := store.ProbeRecorder()
	pipeline := store.PipelineRecorder()
	bounded := store.StoreRecorder()

	probes.IncProbeRuns("latency")
	probes.IncProbeRuns("latency")
	probes.IncProbeErrors("latency")
	probes.IncHostFailures("latency")
	probes.IncTicksSkipped("trace")
	probes.IncSamplesEmitted("latency")
	pipeline.IncHandlerDrops("fping")
	pipeline.IncStoreWrites("fping")
	bounded.IncEvictions()
	bounded.ObserveKeyCount(4)

	snap := store.Snapshot()
	if snap.ProbeRuns["latency"] != 2 {
		t.Fatalf("expected 2 runs got %d", snap.ProbeRuns["latency"])
	}
	if snap.ProbeErrors["latency"] != 1 {
		t.Fatalf("expected 1 error got %d", snap.ProbeErrors["latency"])
	}
	if snap.TicksSkipped["trace"] != 1 {
		t.Fatalf("expected 1 skipped tick got %d", snap.TicksSkipped["trace"])
	}
	if snap.HandlerDrops["fping"] != 1 || snap.StoreWrites["fping"] != 1 {
		t.Fatalf("unexpected pipeline counters: %+v", snap)
	}
	if snap.StoreEvictions != 1 || snap.StoreKeys != 4 {
		t.Fatalf("unexpected store counters: %+v", snap)
	}
}

func TestObserveReadiness(t *testing.T) {
	store := NewStore()
	store.ObserveReadiness(false, "probe latency stale")

	snap := store.Snapshot()
	if snap.Ready || snap.ReadyReason != "probe latency stale" {
		t.Fatalf("unexpected readiness snapshot: %+v", snap)
	}

	store.ObserveReadiness(true, "")
	snap = store.Snapshot()
	if !snap.Ready || snap.ReadyReason != "" {
		t.Fatalf("expected ready state, got %+v", snap)
	}
}

func TestWritePrometheus(t *testing.T) {
	store := NewStore()
	store.ProbeRecorder().IncProbeRuns("latency")
	store.PipelineRecorder().IncStoreWrites("fping")
	store.StoreRecorder().IncEvictions()
	store.ObserveReadiness(true, "")

	var sb strings.Builder
	if err := store.WritePrometheus(&sb); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		"netpulse_collector_store_evictions_total 1",
		"netpulse_collector_ready 1",
		`netpulse_collector_probe_runs_total{probe="latency"} 1`,
		`netpulse_collector_store_writes_total{data_type="fping"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestConcurrentIncrements(t *testing.T) {
	store := NewStore()
	rec := store.ProbeRecorder()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				rec.IncProbeRuns("latency")
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	if got := store.Snapshot().ProbeRuns["latency"]; got != 800 {
		t.Fatalf("expected 800 runs got %d", got)
	}
}
