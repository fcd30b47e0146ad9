package probe

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a probe instance from its resolved spec.
type Factory func(spec Spec) (Probe, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register adds a probe factory under a type name. Registration
// happens from init funcs; duplicate registration panics.
func Register(probeType string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if probeType == "" || factory == nil {
		panic("probe: Register with empty type or nil factory")
	}
	if _, dup := factories[probeType]; dup {
		panic(fmt.Sprintf("probe: Register called twice for type %q", probeType))
	}
	factories[probeType] = factory
}

// New resolves a probe type name to its factory and builds the probe.
// Unknown type names are rejected, never defaulted.
func New(spec Spec) (Probe, error) {
	registryMu.RLock()
	factory, ok := factories[spec.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown probe type %q (known: %v)", spec.Type, Types())
	}
	return factory(spec)
}

// Types returns the sorted registered probe type names.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
