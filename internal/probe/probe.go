// Package probe defines the probe contract and the built-in probe
// implementations (fping latency, fping_mtr multi-hop trace).
package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/netpulsehq/collector/pkg/types"
)

// Probe performs one measurement run against its configured hosts.
type Probe interface {
	Name() string
	Run(ctx context.Context) (Report, error)
}

// Report is the outcome of a single probe run. Hosts that did not
// respond appear in Failures, never as zero-value samples.
type Report struct {
	Samples  []types.Sample
	Failures []HostFailure
}

// HostFailure is the distinct failure signal for one unreachable host.
type HostFailure struct {
	Host   string
	Reason string
}

// Host is one fan-out target with its display metadata.
type Host struct {
	Host  string
	Label string
	Color string
}

// Spec is the resolved configuration for one probe instance, built
// from the probe and plugin sections of the config file.
type Spec struct {
	Name     string
	Type     string
	Interval time.Duration
	Timeout  time.Duration
	Hosts    []Host
	Count    int
	Period   int
	Command  string
	Logger   *slog.Logger
}

// hostArgs returns the deduplicated host address list, preserving
// declaration order.
func (s Spec) hostArgs() []string {
	seen := make(map[string]struct{}, len(s.Hosts))
	out := make([]string, 0, len(s.Hosts))
	for _, h := range s.Hosts {
		if h.Host == "" {
			continue
		}
		if _, ok := seen[h.Host]; ok {
			continue
		}
		seen[h.Host] = struct{}{}
		out = append(out, h.Host)
	}
	return out
}
