package health

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/netpulsehq/collector/internal/metrics"
)

// staleFactor is how many intervals may elapse without a successful
// run before a probe is considered stale.
const staleFactor = 3

// Checker evaluates readiness conditions for the collector. A probe
// is healthy once it has produced at least one successful run within
// staleFactor intervals.
type Checker struct {
	metrics *metrics.Store

	mu       sync.RWMutex
	probes   map[string]*probeState
	keyLimit int64
}

type probeState struct {
	interval    time.Duration
	lastSuccess time.Time
	lastErr     string
	lastErrAt   time.Time
}

// NewChecker constructs a readiness checker bound to the provided metrics store.
func NewChecker(store *metrics.Store) *Checker {
	return &Checker{
		metrics: store,
		probes:  make(map[string]*probeState),
	}
}

// SetKeyLimit bounds the distinct store key count readiness will
// tolerate. Exceeding it usually means a misconfigured index field is
// fanning samples out over unbounded keys. Zero disables the check.
func (c *Checker) SetKeyLimit(limit int64) {
	c.mu.Lock()
	c.keyLimit = limit
	c.mu.Unlock()
}

// Track registers a probe so readiness accounts for it before its
// first run completes.
func (c *Checker) Track(probe string, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.probes[probe]; !ok {
		c.probes[probe] = &probeState{interval: interval}
		return
	}
	c.probes[probe].interval = interval
}

// ObserveRun records the outcome of a probe run.
func (c *Checker) ObserveRun(probe string, ts time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.probes[probe]
	if !ok {
		state = &probeState{}
		c.probes[probe] = state
	}
	if err != nil {
		state.lastErr = err.Error()
		state.lastErrAt = ts
		return
	}
	state.lastSuccess = ts
	state.lastErr = ""
	state.lastErrAt = time.Time{}
}

// Ready evaluates all tracked probes and returns the overall status
// and the reasons for failure.
func (c *Checker) Ready(now time.Time) (bool, []string) {
	c.mu.RLock()
	reasons := make([]string, 0, len(c.probes))
	for name, state := range c.probes {
		staleAfter := staleFactor * state.interval
		switch {
		case state.lastSuccess.IsZero() && state.lastErr == "":
			reasons = append(reasons, fmt.Sprintf("probe %s has not run yet", name))
		case state.lastSuccess.IsZero():
			reasons = append(reasons, fmt.Sprintf("probe %s failing: %s", name, state.lastErr))
		case staleAfter > 0 && now.Sub(state.lastSuccess) > staleAfter:
			reasons = append(reasons, fmt.Sprintf("probe %s stale (%s since last success)",
				name, now.Sub(state.lastSuccess).Round(time.Second)))
		case state.lastErr != "" && state.lastErrAt.After(state.lastSuccess):
			reasons = append(reasons, fmt.Sprintf("probe %s failing: %s", name, state.lastErr))
		}
	}
	keyLimit := c.keyLimit
	c.mu.RUnlock()

	if keyLimit > 0 && c.metrics != nil {
		if keys := c.metrics.Snapshot().StoreKeys; keys > keyLimit {
			reasons = append(reasons, fmt.Sprintf("store key count %d exceeds limit %d", keys, keyLimit))
		}
	}
	sort.Strings(reasons)

	ready := len(reasons) == 0
	if c.metrics != nil {
		c.metrics.ObserveReadiness(ready, strings.Join(reasons, "; "))
	}
	if !ready {
		return false, reasons
	}
	return true, nil
}
