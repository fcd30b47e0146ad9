package query

import (
	"fmt"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/netpulsehq/collector/pkg/types"
)

// sketchAccuracy is the DDSketch relative accuracy used for
// percentile summaries.
const sketchAccuracy = 0.01

// Summary aggregates the latency samples of one time bucket.
type Summary struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Count int       `json:"count"`
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
	Avg   float64   `json:"avg"`
	Loss  float64   `json:"loss"`
	P50   float64   `json:"p50"`
	P90   float64   `json:"p90"`
	P95   float64   `json:"p95"`
}

// Summaries buckets the window into n equal spans and aggregates each:
// count/min/max/avg, mean loss, and DDSketch percentiles over the
// individual round-trip times. Empty buckets are omitted.
func (f *Facade) Summaries(dataType, key string, w Window, buckets int) ([]Summary, error) {
	if buckets <= 0 {
		return nil, fmt.Errorf("%w: buckets must be positive", ErrBadWindow)
	}
	samples, err := f.Samples(dataType, key, w)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return []Summary{}, nil
	}

	from := w.From
	to := w.To
	if from.IsZero() {
		from = samples[0].EmittedAt
	}
	if to.IsZero() {
		to = samples[len(samples)-1].EmittedAt
	}
	span := to.Sub(from)
	if span <= 0 {
		span = time.Second
		buckets = 1
	}
	width := span / time.Duration(buckets)
	if width <= 0 {
		width = time.Second
	}

	aggs := make([]*bucketAggregate, buckets)
	for _, s := range samples {
		stats, ok := s.Payload.(types.PingStats)
		if !ok {
			continue
		}
		idx := int(s.EmittedAt.Sub(from) / width)
		if idx < 0 {
			idx = 0
		}
		if idx >= buckets {
			idx = buckets - 1
		}
		if aggs[idx] == nil {
			aggs[idx] = newBucketAggregate(from.Add(time.Duration(idx)*width), width)
		}
		aggs[idx].add(stats)
	}

	out := make([]Summary, 0, buckets)
	for _, agg := range aggs {
		if agg == nil || agg.count == 0 {
			continue
		}
		out = append(out, agg.summary())
	}
	return out, nil
}

type bucketAggregate struct {
	start   time.Time
	end     time.Time
	count   int
	min     float64
	max     float64
	sum     float64
	lossSum float64
	sketch  *ddsketch.DDSketch
}

func newBucketAggregate(start time.Time, width time.Duration) *bucketAggregate {
	agg := &bucketAggregate{start: start, end: start.Add(width)}
	sketch, err := ddsketch.NewDefaultDDSketch(sketchAccuracy)
	if err == nil {
		agg.sketch = sketch
	}
	return agg
}

func (a *bucketAggregate) add(stats types.PingStats) {
	if a.count == 0 || stats.Min < a.min {
		a.min = stats.Min
	}
	if a.count == 0 || stats.Max > a.max {
		a.max = stats.Max
	}
	a.sum += stats.Avg
	a.lossSum += stats.Loss
	a.count++
	if a.sketch != nil {
		for _, rtt := range stats.RTTs {
			_ = a.sketch.Add(rtt)
		}
	}
}

func (a *bucketAggregate) summary() Summary {
	s := Summary{
		Start: a.start,
		End:   a.end,
		Count: a.count,
		Min:   a.min,
		Max:   a.max,
	}
	if a.count > 0 {
		s.Avg = a.sum / float64(a.count)
		s.Loss = a.lossSum / float64(a.count)
	}
	if a.sketch != nil && a.sketch.GetCount() > 0 {
		if p50, err := a.sketch.GetValueAtQuantile(0.50); err == nil {
			s.P50 = p50
		}
		if p90, err := a.sketch.GetValueAtQuantile(0.90); err == nil {
			s.P90 = p90
		}
		if p95, err := a.sketch.GetValueAtQuantile(0.95); err == nil {
			s.P95 = p95
		}
	}
	return s
}
