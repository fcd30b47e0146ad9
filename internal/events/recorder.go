package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/netpulsehq/collector/pkg/types"
)

type Recorder interface {
	Record(event types.Event)
}

type NoopRecorder struct{}

func (NoopRecorder) Record(event types.Event) {}

type Multi struct {
	recorders []Recorder
}

func NewMulti(recorders ...Recorder) Multi {
	return Multi{recorders: recorders}
}

func (m Multi) Record(event types.Event) {
	for _, rec := range m.recorders {
		if rec != nil {
			rec.Record(event)
		}
	}
}

// LogRecorder mirrors pipeline events into structured logs so
// recoverable failures surface without polling /events. Error-class
// events log at warn; routine ones (skips, evictions) at debug.
type LogRecorder struct {
	logger *slog.Logger
}

func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(event types.Event) {
	if r.logger == nil {
		return
	}
	level := slog.LevelWarn
	switch event.Type {
	case types.EventTickSkip, types.EventStoreEvict:
		level = slog.LevelDebug
	}
	r.logger.Log(context.Background(), level, "pipeline event",
		"type", string(event.Type),
		"probe", event.ProbeName,
		"key", event.Key,
		"details", event.Details,
	)
}

// Ring keeps the most recent events in a fixed-capacity buffer for the
// serving layer's /events endpoint. Oldest events are overwritten.
type Ring struct {
	mu       sync.RWMutex
	capacity int
	items    []types.Event
	head     int
	count    int
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 256
	}
	return &Ring{
		capacity: capacity,
		items:    make([]types.Event, capacity),
	}
}

func (r *Ring) Record(event types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.head + r.count) % r.capacity
	r.items[idx] = event
	if r.count < r.capacity {
		r.count++
	} else {
		r.head = (r.head + 1) % r.capacity
	}
}

// Recent returns up to max events, oldest first. max <= 0 returns all.
func (r *Ring) Recent(max int) []types.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.count
	if max > 0 && max < n {
		n = max
	}
	out := make([]types.Event, 0, n)
	start := r.count - n
	for i := start; i < r.count; i++ {
		out = append(out, r.items[(r.head+i)%r.capacity])
	}
	return out
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
