package probe

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/netpulsehq/collector/pkg/types"
)

func init() {
	Register("fping_mtr", func(spec Spec) (Probe, error) {
		return NewMTR(spec)
	})
}

const (
	defaultMTRCommand = "mtr"
	defaultMTRFanOut  = 4
)

// MTR traces the path to each configured host with `mtr --raw` and
// emits one hop-list sample per reachable host.
type MTR struct {
	name    string
	command string
	count   int
	hosts   []string
	timeout time.Duration
	fanOut  int
	logger  *slog.Logger

	execCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
	now         func() time.Time
}

func NewMTR(spec Spec) (*MTR, error) {
	command := spec.Command
	if command == "" {
		command = defaultMTRCommand
	}
	if _, err := exec.LookPath(command); err != nil {
		return nil, fmt.Errorf("mtr command %q not found: %w", command, err)
	}

	count := spec.Count
	if count <= 0 {
		count = defaultPingCount
	}
	hosts := spec.hostArgs()
	if len(hosts) == 0 {
		return nil, fmt.Errorf("probe %q has no hosts", spec.Name)
	}

	return &MTR{
		name:        spec.Name,
		command:     command,
		count:       count,
		hosts:       hosts,
		timeout:     spec.Timeout,
		fanOut:      defaultMTRFanOut,
		logger:      spec.Logger,
		execCommand: runCombined,
		now:         time.Now,
	}, nil
}

func (p *MTR) Name() string { return p.name }

// Run traces all hosts with bounded concurrency. Per-host trace
// failures are reported in the failure list; the run itself only
// fails on context cancellation.
func (p *MTR) Run(ctx context.Context) (Report, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	emittedAt := p.now().UTC()

	var mu sync.Mutex
	report := Report{}

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(p.fanOut)
	for _, host := range p.hosts {
		host := host
		grp.Go(func() error {
			result, err := p.traceHost(grpCtx, host)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, HostFailure{
					Host:   host,
					Reason: err.Error(),
				})
				return nil
			}
			report.Samples = append(report.Samples, types.Sample{
				ProbeName: p.name,
				EmittedAt: emittedAt,
				Payload:   result,
			})
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	// Fan-out completion order is nondeterministic; keep sample order
	// stable for downstream consumers.
	sort.Slice(report.Samples, func(i, j int) bool {
		return report.Samples[i].Payload.(types.TraceResult).Host < report.Samples[j].Payload.(types.TraceResult).Host
	})
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Host < report.Failures[j].Host
	})
	return report, nil
}

func (p *MTR) traceHost(ctx context.Context, host string) (types.TraceResult, error) {
	args := []string{"--raw", "--no-dns", "-c", strconv.Itoa(p.count), host}
	out, err := p.execCommand(ctx, p.command, args...)
	if err != nil && len(out) == 0 {
		return types.TraceResult{}, fmt.Errorf("mtr %s: %w", host, err)
	}

	result, perr := parseMTRRaw(host, string(out), p.count)
	if perr != nil {
		return types.TraceResult{}, perr
	}
	return result, nil
}

// parseMTRRaw parses mtr --raw output. The format is line oriented:
//
//	h <hop> <address>   hop address discovered
//	p <hop> <usec>      one reply latency in microseconds
//
// Unknown record types are skipped.
func parseMTRRaw(host, raw string, sent int) (types.TraceResult, error) {
	hopHosts := make(map[int]string)
	hopTimes := make(map[int][]float64)
	maxHop := -1

	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		hop, err := strconv.Atoi(fields[1])
		if err != nil || hop < 0 {
			continue
		}
		switch fields[0] {
		case "h":
			hopHosts[hop] = fields[2]
		case "p":
			usec, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				continue
			}
			hopTimes[hop] = append(hopTimes[hop], usec/1000.0)
		default:
			continue
		}
		if hop > maxHop {
			maxHop = hop
		}
	}

	if maxHop < 0 {
		return types.TraceResult{}, fmt.Errorf("mtr %s: no hops in output", host)
	}

	result := types.TraceResult{Host: host}
	for hop := 0; hop <= maxHop; hop++ {
		entry := types.TraceHop{
			Hop:  hop + 1,
			Host: hopHosts[hop],
			Sent: sent,
		}
		times := hopTimes[hop]
		if len(times) > 0 {
			entry.Best = times[0]
			entry.Worst = times[0]
			sum := 0.0
			for _, v := range times {
				if v < entry.Best {
					entry.Best = v
				}
				if v > entry.Worst {
					entry.Worst = v
				}
				sum += v
			}
			entry.Avg = sum / float64(len(times))
		}
		if sent > 0 {
			entry.Loss = float64(sent-len(times)) / float64(sent)
			if entry.Loss < 0 {
				entry.Loss = 0
			}
		}
		result.Hops = append(result.Hops, entry)
	}
	return result, nil
}
