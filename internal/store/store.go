// Package store implements the bounded per-key sample store. Each key
// owns a fixed-capacity ring buffer; appends evict oldest-first in
// O(1) and never grow past capacity. Entries for distinct keys are
// independently locked so writers to different keys never contend.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/netpulsehq/collector/internal/events"
	"github.com/netpulsehq/collector/internal/metrics"
	"github.com/netpulsehq/collector/pkg/types"
)

type Store struct {
	capacity int

	mu      sync.RWMutex
	entries map[string]*entry

	metricsRec metrics.StoreRecorder
	eventsRec  events.Recorder
}

type entry struct {
	mu    sync.RWMutex
	ring  []types.Sample
	head  int
	count int
}

type Option func(*Store)

func WithMetricsRecorder(rec metrics.StoreRecorder) Option {
	return func(s *Store) {
		if rec != nil {
			s.metricsRec = rec
		}
	}
}

func WithEventRecorder(rec events.Recorder) Option {
	return func(s *Store) {
		if rec != nil {
			s.eventsRec = rec
		}
	}
}

// New constructs a bounded store holding at most capacity samples per key.
func New(capacity int, opts ...Option) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	s := &Store{
		capacity:   capacity,
		entries:    make(map[string]*entry),
		metricsRec: metrics.NoopStoreRecorder{},
		eventsRec:  events.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capacity returns the per-key capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// Write appends a copy of the sample under key, evicting the oldest
// sample first when the key is at capacity.
func (s *Store) Write(key string, sample types.Sample) {
	e := s.entryFor(key)

	e.mu.Lock()
	evicted := false
	if e.count == s.capacity {
		e.ring[e.head] = sample.Clone()
		e.head = (e.head + 1) % s.capacity
		evicted = true
	} else {
		e.ring[(e.head+e.count)%s.capacity] = sample.Clone()
		e.count++
	}
	e.mu.Unlock()

	if evicted {
		s.metricsRec.IncEvictions()
		s.eventsRec.Record(types.Event{
			Type:      types.EventStoreEvict,
			Timestamp: time.Now().UTC(),
			ProbeName: sample.ProbeName,
			Key:       key,
		})
	}
}

// Read returns a chronological snapshot of the samples stored under
// key. A key with no entries yields an empty slice.
func (s *Store) Read(key string) []types.Sample {
	return s.ReadRange(key, time.Time{}, time.Time{})
}

// ReadRange returns the chronological snapshot filtered to samples
// emitted within [from, to]. Zero bounds are open-ended. The snapshot
// is point-in-time consistent with respect to concurrent writers.
func (s *Store) ReadRange(key string, from, to time.Time) []types.Sample {
	s.mu.RLock()
	e := s.entries[key]
	s.mu.RUnlock()
	if e == nil {
		return []types.Sample{}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]types.Sample, 0, e.count)
	for i := 0; i < e.count; i++ {
		sample := e.ring[(e.head+i)%s.capacity]
		if !from.IsZero() && sample.EmittedAt.Before(from) {
			continue
		}
		if !to.IsZero() && sample.EmittedAt.After(to) {
			continue
		}
		out = append(out, sample.Clone())
	}
	return out
}

// Keys returns the sorted set of keys observed so far.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of samples currently stored under key.
func (s *Store) Len(key string) int {
	s.mu.RLock()
	e := s.entries[key]
	s.mu.RUnlock()
	if e == nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.count
}

func (s *Store) entryFor(key string) *entry {
	s.mu.RLock()
	e := s.entries[key]
	s.mu.RUnlock()
	if e != nil {
		return e
	}

	s.mu.Lock()
	e = s.entries[key]
	if e == nil {
		e = &entry{ring: make([]types.Sample, s.capacity)}
		s.entries[key] = e
		s.metricsRec.ObserveKeyCount(len(s.entries))
	}
	s.mu.Unlock()
	return e
}
