// Package query is the read-only access path between the bounded
// stores and the serving layer. It never mutates store state and
// always returns point-in-time-consistent snapshots.
package query

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/netpulsehq/collector/internal/store"
	"github.com/netpulsehq/collector/pkg/types"
)

var (
	// ErrUnknownDataType signals a request for a data type no chain
	// stores. Unknown keys are not errors; they yield empty series.
	ErrUnknownDataType = errors.New("unknown data type")
	// ErrBadWindow signals a malformed time window.
	ErrBadWindow = errors.New("invalid time window")
)

// Window is an optional [From, To] time filter. Zero bounds are open.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) validate() error {
	if !w.From.IsZero() && !w.To.IsZero() && w.To.Before(w.From) {
		return fmt.Errorf("%w: to precedes from", ErrBadWindow)
	}
	return nil
}

// Target is one configured host with its display metadata.
type Target struct {
	Group string `json:"group"`
	Probe string `json:"probe"`
	Host  string `json:"host"`
	Label string `json:"name"`
	Color string `json:"color"`
}

// Catalog maps each data type to the bounded store its chain writes.
type Catalog map[string]*store.Store

// Facade assembles store reads into the shapes the serving layer needs.
type Facade struct {
	catalog Catalog
	targets []Target
}

func New(catalog Catalog, targets []Target) *Facade {
	return &Facade{
		catalog: catalog,
		targets: append([]Target(nil), targets...),
	}
}

// Targets lists the configured hosts/groups.
func (f *Facade) Targets() []Target {
	return append([]Target(nil), f.targets...)
}

// DataTypes lists the data types with a backing store.
func (f *Facade) DataTypes() []string {
	out := make([]string, 0, len(f.catalog))
	for dt := range f.catalog {
		out = append(out, dt)
	}
	sort.Strings(out)
	return out
}

// Keys lists the keys observed for a data type.
func (f *Facade) Keys(dataType string) ([]string, error) {
	st, ok := f.catalog[dataType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataType, dataType)
	}
	return st.Keys(), nil
}

// Samples returns the raw stored samples for a key within the window.
// An unknown key yields an empty slice, never an error.
func (f *Facade) Samples(dataType, key string, w Window) ([]types.Sample, error) {
	st, ok := f.catalog[dataType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataType, dataType)
	}
	if err := w.validate(); err != nil {
		return nil, err
	}
	return st.ReadRange(key, w.From, w.To), nil
}

// Point is one plotted measurement of a latency series.
type Point struct {
	At     time.Time `json:"ts"`
	Avg    float64   `json:"avg"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	Median float64   `json:"median"`
	Last   float64   `json:"last"`
	Loss   float64   `json:"loss"`
}

// Series is the per-key plot data for latency samples.
type Series struct {
	DataType string  `json:"data_type"`
	Key      string  `json:"key"`
	Points   []Point `json:"points"`
}

// Series extracts latency points for one key. Non-latency payloads
// stored under the same data type are skipped.
func (f *Facade) Series(dataType, key string, w Window) (Series, error) {
	samples, err := f.Samples(dataType, key, w)
	if err != nil {
		return Series{}, err
	}
	series := Series{DataType: dataType, Key: key, Points: []Point{}}
	for _, s := range samples {
		stats, ok := s.Payload.(types.PingStats)
		if !ok {
			continue
		}
		series.Points = append(series.Points, Point{
			At:     s.EmittedAt,
			Avg:    stats.Avg,
			Min:    stats.Min,
			Max:    stats.Max,
			Median: stats.Median,
			Last:   stats.Last,
			Loss:   stats.Loss,
		})
	}
	return series, nil
}

// Traces returns the stored hop lists for one key, newest last.
func (f *Facade) Traces(dataType, key string, w Window) ([]Trace, error) {
	samples, err := f.Samples(dataType, key, w)
	if err != nil {
		return nil, err
	}
	traces := make([]Trace, 0, len(samples))
	for _, s := range samples {
		result, ok := s.Payload.(types.TraceResult)
		if !ok {
			continue
		}
		traces = append(traces, Trace{At: s.EmittedAt, Host: result.Host, Hops: result.Hops})
	}
	return traces, nil
}

// Trace is one stored trace run.
type Trace struct {
	At   time.Time        `json:"ts"`
	Host string           `json:"host"`
	Hops []types.TraceHop `json:"hops"`
}
