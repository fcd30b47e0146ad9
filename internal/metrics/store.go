package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

// Store maintains in-memory gauges and counters for collector telemetry.
type Store struct {
	storeEvictions  atomic.Uint64
	storeKeys       atomic.Int64
	readinessState  atomic.Int64
	readinessReason atomic.Value

	probeRuns      sync.Map // probe name -> *atomic.Uint64
	probeErrors    sync.Map
	hostFailures   sync.Map
	ticksSkipped   sync.Map
	samplesEmitted sync.Map
	handlerDrops   sync.Map // data type -> *atomic.Uint64
	storeWrites    sync.Map
}

// NewStore constructs a Store with zeroed metrics.
func NewStore() *Store {
	store := &Store{}
	store.readinessReason.Store("")
	return store
}

// Snapshot captures the current metric values in a plain struct.
type Snapshot struct {
	ProbeRuns      map[string]uint64
	ProbeErrors    map[string]uint64
	HostFailures   map[string]uint64
	TicksSkipped   map[string]uint64
	SamplesEmitted map[string]uint64
	HandlerDrops   map[string]uint64
	StoreWrites    map[string]uint64
	StoreEvictions uint64
	StoreKeys      int64
	Ready          bool
	ReadyReason    string
}

// Snapshot returns a point-in-time copy of the metrics.
func (s *Store) Snapshot() Snapshot {
	reason, _ := s.readinessReason.Load().(string)
	return Snapshot{
		ProbeRuns:      collect(&s.probeRuns),
		ProbeErrors:    collect(&s.probeErrors),
		HostFailures:   collect(&s.hostFailures),
		TicksSkipped:   collect(&s.ticksSkipped),
		SamplesEmitted: collect(&s.samplesEmitted),
		HandlerDrops:   collect(&s.handlerDrops),
		StoreWrites:    collect(&s.storeWrites),
		StoreEvictions: s.storeEvictions.Load(),
		StoreKeys:      s.storeKeys.Load(),
		Ready:          s.readinessState.Load() == 1,
		ReadyReason:    reason,
	}
}

// ObserveReadiness records the latest readiness evaluation.
func (s *Store) ObserveReadiness(ready bool, reason string) {
	if ready {
		s.readinessState.Store(1)
		s.readinessReason.Store("")
		return
	}
	s.readinessState.Store(0)
	s.readinessReason.Store(reason)
}

// ProbeRecorder returns a ProbeRecorder backed by the store.
func (s *Store) ProbeRecorder() ProbeRecorder {
	return probeRecorder{store: s}
}

// PipelineRecorder returns a PipelineRecorder backed by the store.
func (s *Store) PipelineRecorder() PipelineRecorder {
	return pipelineRecorder{store: s}
}

// StoreRecorder returns a StoreRecorder backed by the store.
func (s *Store) StoreRecorder() StoreRecorder {
	return storeRecorder{store: s}
}

type probeRecorder struct {
	store *Store
}

func (r probeRecorder) IncProbeRuns(probe string)      { increment(&r.store.probeRuns, probe) }
func (r probeRecorder) IncProbeErrors(probe string)    { increment(&r.store.probeErrors, probe) }
func (r probeRecorder) IncHostFailures(probe string)   { increment(&r.store.hostFailures, probe) }
func (r probeRecorder) IncTicksSkipped(probe string)   { increment(&r.store.ticksSkipped, probe) }
func (r probeRecorder) IncSamplesEmitted(probe string) { increment(&r.store.samplesEmitted, probe) }

type pipelineRecorder struct {
	store *Store
}

func (r pipelineRecorder) IncHandlerDrops(dataType string) { increment(&r.store.handlerDrops, dataType) }
func (r pipelineRecorder) IncStoreWrites(dataType string)  { increment(&r.store.storeWrites, dataType) }

type storeRecorder struct {
	store *Store
}

func (r storeRecorder) IncEvictions() {
	r.store.storeEvictions.Add(1)
}

func (r storeRecorder) ObserveKeyCount(keys int) {
	r.store.storeKeys.Store(int64(keys))
}

func increment(m *sync.Map, key string) {
	if value, ok := m.Load(key); ok {
		if counter, ok := value.(*atomic.Uint64); ok && counter != nil {
			counter.Add(1)
			return
		}
	}
	counter := &atomic.Uint64{}
	actual, _ := m.LoadOrStore(key, counter)
	if existing, ok := actual.(*atomic.Uint64); ok && existing != nil {
		existing.Add(1)
	}
}

func collect(m *sync.Map) map[string]uint64 {
	out := make(map[string]uint64)
	m.Range(func(key, value any) bool {
		name, ok := key.(string)
		if !ok {
			return true
		}
		counter, ok := value.(*atomic.Uint64)
		if !ok || counter == nil {
			return true
		}
		out[name] = counter.Load()
		return true
	})
	return out
}

// WritePrometheus renders the current metrics using the Prometheus text format.
func (s *Store) WritePrometheus(w io.Writer) error {
	snap := s.Snapshot()
	readyValue := 0
	if snap.Ready {
		readyValue = 1
	}
	reason := snap.ReadyReason
	if snap.Ready {
		reason = "ready"
	} else if reason == "" {
		reason = "unknown"
	}

	lines := []string{
		"# HELP netpulse_collector_store_evictions_total Total samples evicted from bounded stores.",
		"# TYPE netpulse_collector_store_evictions_total counter",
		fmt.Sprintf("netpulse_collector_store_evictions_total %d", snap.StoreEvictions),
		"# HELP netpulse_collector_store_keys_number Distinct keys currently held across bounded stores.",
		"# TYPE netpulse_collector_store_keys_number gauge",
		fmt.Sprintf("netpulse_collector_store_keys_number %d", snap.StoreKeys),
		"# HELP netpulse_collector_ready Whether the collector considers itself ready (1=ready).",
		"# TYPE netpulse_collector_ready gauge",
		fmt.Sprintf("netpulse_collector_ready %d", readyValue),
		"# HELP netpulse_collector_ready_info Reason associated with the most recent readiness evaluation.",
		"# TYPE netpulse_collector_ready_info gauge",
		fmt.Sprintf("netpulse_collector_ready_info{reason=%q} 1", reason),
	}
	lines = appendLabeled(lines, "netpulse_collector_probe_runs_total", "Total probe executions by probe.", "probe", snap.ProbeRuns)
	lines = appendLabeled(lines, "netpulse_collector_probe_errors_total", "Total failed probe executions by probe.", "probe", snap.ProbeErrors)
	lines = appendLabeled(lines, "netpulse_collector_host_failures_total", "Total unreachable-host signals by probe.", "probe", snap.HostFailures)
	lines = appendLabeled(lines, "netpulse_collector_ticks_skipped_total", "Total scheduler ticks skipped by probe.", "probe", snap.TicksSkipped)
	lines = appendLabeled(lines, "netpulse_collector_samples_emitted_total", "Total samples emitted by probe.", "probe", snap.SamplesEmitted)
	lines = appendLabeled(lines, "netpulse_collector_handler_drops_total", "Total samples dropped by handler chains by data type.", "data_type", snap.HandlerDrops)
	lines = appendLabeled(lines, "netpulse_collector_store_writes_total", "Total bounded store writes by data type.", "data_type", snap.StoreWrites)

	lines = append(lines, "")
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func appendLabeled(lines []string, name, help, label string, values map[string]uint64) []string {
	lines = append(lines,
		fmt.Sprintf("# HELP %s %s", name, help),
		fmt.Sprintf("# TYPE %s counter", name),
	)
	if len(values) == 0 {
		return lines
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s{%s=%q} %d", name, label, k, values[k]))
	}
	return lines
}

// NewHTTPHandler returns an http.Handler that serves Prometheus formatted metrics.
func NewHTTPHandler(store *Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if r.Method == http.MethodHead {
			return
		}
		if err := store.WritePrometheus(w); err != nil {
			http.Error(w, "metrics unavailable", http.StatusInternalServerError)
		}
	})
}
