package probe

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/netpulsehq/collector/pkg/types"
)

func init() {
	Register("fping", func(spec Spec) (Probe, error) {
		return NewFPing(spec)
	})
}

const (
	defaultFPingCommand = "fping"
	defaultPingCount    = 5
	defaultPingPeriodMs = 20
)

// FPing pings the configured hosts with the fping binary and parses
// its per-host summary output into PingStats samples.
type FPing struct {
	name    string
	command string
	count   int
	period  int
	hosts   []string
	version int
	timeout time.Duration
	logger  *slog.Logger

	execCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
	now         func() time.Time
}

// NewFPing builds the fping probe. A missing binary is a construction
// error so misconfiguration is rejected at load time.
func NewFPing(spec Spec) (*FPing, error) {
	command := spec.Command
	if command == "" {
		command = defaultFPingCommand
	}
	if _, err := exec.LookPath(command); err != nil {
		return nil, fmt.Errorf("fping command %q not found: %w", command, err)
	}

	count := spec.Count
	if count <= 0 {
		count = defaultPingCount
	}
	period := spec.Period
	if period <= 0 {
		period = defaultPingPeriodMs
	}
	hosts := spec.hostArgs()
	if len(hosts) == 0 {
		return nil, fmt.Errorf("probe %q has no hosts", spec.Name)
	}

	p := &FPing{
		name:        spec.Name,
		command:     command,
		count:       count,
		period:      period,
		hosts:       hosts,
		timeout:     spec.Timeout,
		logger:      spec.Logger,
		execCommand: runCombined,
		now:         time.Now,
	}
	p.version = p.detectVersion(context.Background())
	return p, nil
}

func (p *FPing) Name() string { return p.name }

// detectVersion distinguishes fping 5 (summary needs -q) from older
// releases. Detection failures default to the version 4 output format.
func (p *FPing) detectVersion(ctx context.Context) int {
	out, err := p.execCommand(ctx, p.command, "-v")
	if err != nil && len(out) == 0 {
		if p.logger != nil {
			p.logger.Warn("fping version detection failed, assuming version 4", "error", err)
		}
		return 4
	}
	if strings.Contains(string(out), "fping: Version 5") {
		return 5
	}
	return 4
}

// Run executes one fping round over all hosts. Hosts with no replies
// are reported as failures, not as samples.
func (p *FPing) Run(ctx context.Context) (Report, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	args := []string{
		"-u",
		fmt.Sprintf("-C%d", p.count),
		fmt.Sprintf("-p%d", p.period),
		"-e",
	}
	if p.version >= 5 {
		args = append(args, "-q")
	}
	args = append(args, p.hosts...)

	out, err := p.execCommand(ctx, p.command, args...)
	// fping exits nonzero when any host is unreachable; its output is
	// still usable, so only a fully unparseable run is a probe error.
	parsed := make(map[string]types.PingStats)
	for _, line := range strings.Split(string(out), "\n") {
		stats, ok := parseFPingLine(line)
		if !ok {
			continue
		}
		parsed[stats.Host] = stats
	}
	if len(parsed) == 0 {
		if err != nil {
			return Report{}, fmt.Errorf("fping run: %w", err)
		}
		return Report{}, fmt.Errorf("fping produced no parseable output")
	}

	emittedAt := p.now().UTC()
	report := Report{}
	for _, host := range p.hosts {
		stats, ok := parsed[host]
		if !ok || stats.Sent == stats.Lost {
			report.Failures = append(report.Failures, HostFailure{
				Host:   host,
				Reason: "no replies",
			})
			continue
		}
		report.Samples = append(report.Samples, types.Sample{
			ProbeName: p.name,
			EmittedAt: emittedAt,
			Payload:   stats,
		})
	}
	return report, nil
}

// parseFPingLine parses one per-host summary line of the form
//
//	8.8.8.8 : 12.5 13.1 - 12.9
//
// where "-" marks a lost ping. Lines in any other shape are skipped.
func parseFPingLine(line string) (types.PingStats, bool) {
	host, rest, found := strings.Cut(line, " : ")
	if !found {
		return types.PingStats{}, false
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return types.PingStats{}, false
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return types.PingStats{}, false
	}

	times := make([]float64, 0, len(fields))
	for _, f := range fields {
		if f == "-" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return types.PingStats{}, false
		}
		times = append(times, v)
	}

	stats := types.PingStats{
		Host: host,
		Sent: len(fields),
		Lost: len(fields) - len(times),
		RTTs: times,
	}
	if stats.Lost > 0 {
		stats.Loss = float64(stats.Lost) / float64(stats.Sent)
	}
	if len(times) > 0 {
		stats.Min = times[0]
		stats.Max = times[0]
		sum := 0.0
		for _, v := range times {
			if v < stats.Min {
				stats.Min = v
			}
			if v > stats.Max {
				stats.Max = v
			}
			sum += v
		}
		stats.Avg = sum / float64(len(times))
		stats.Last = times[len(times)-1]
		stats.Median = median(times)
	}
	return stats, true
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}
