package types

import (
	"fmt"
	"strconv"
	"time"
)

// Sample is one emitted measurement result. It flows by value through
// the handler chains; the store retains its own copy.
type Sample struct {
	ProbeName string    `json:"probe_name"`
	RunID     string    `json:"run_id"`
	Key       string    `json:"key,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
	Payload   Payload   `json:"payload"`
}

// Payload carries the type-specific measurement fields of a Sample.
// The set of implementations is closed: PingStats and TraceResult.
type Payload interface {
	// Field returns the named payload field rendered as a string,
	// used by index handlers to derive grouping keys.
	Field(name string) (string, bool)
}

// PingStats summarizes one ping run against a single host.
type PingStats struct {
	Host   string    `json:"host"`
	Sent   int       `json:"cnt"`
	Lost   int       `json:"lost"`
	Loss   float64   `json:"loss"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	Avg    float64   `json:"avg"`
	Median float64   `json:"median"`
	Last   float64   `json:"last"`
	RTTs   []float64 `json:"data,omitempty"`
}

func (p PingStats) Field(name string) (string, bool) {
	switch name {
	case "host":
		return p.Host, p.Host != ""
	case "cnt":
		return strconv.Itoa(p.Sent), true
	case "loss":
		return strconv.FormatFloat(p.Loss, 'f', -1, 64), true
	case "avg":
		return strconv.FormatFloat(p.Avg, 'f', -1, 64), true
	default:
		return "", false
	}
}

// TraceHop is one hop of a multi-hop trace.
type TraceHop struct {
	Hop   int     `json:"hop"`
	Host  string  `json:"host"`
	Sent  int     `json:"cnt"`
	Loss  float64 `json:"loss"`
	Avg   float64 `json:"avg"`
	Best  float64 `json:"best"`
	Worst float64 `json:"worst"`
}

// TraceResult is the hop list produced by one trace run against a host.
type TraceResult struct {
	Host string     `json:"host"`
	Hops []TraceHop `json:"hops"`
}

func (t TraceResult) Field(name string) (string, bool) {
	switch name {
	case "host":
		return t.Host, t.Host != ""
	case "hops":
		return strconv.Itoa(len(t.Hops)), true
	default:
		return "", false
	}
}

// Clone returns a copy of the sample safe to retain past the handler
// chain. Payload implementations are value types; only the trace hop
// slice needs a deep copy.
func (s Sample) Clone() Sample {
	out := s
	switch p := s.Payload.(type) {
	case PingStats:
		if len(p.RTTs) > 0 {
			p.RTTs = append([]float64(nil), p.RTTs...)
			out.Payload = p
		}
	case TraceResult:
		if len(p.Hops) > 0 {
			p.Hops = append([]TraceHop(nil), p.Hops...)
			out.Payload = p
		}
	}
	return out
}

func (s Sample) String() string {
	return fmt.Sprintf("sample probe=%s key=%s at=%s", s.ProbeName, s.Key, s.EmittedAt.Format(time.RFC3339))
}
