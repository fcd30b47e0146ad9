package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/netpulsehq/collector/internal/events"
	"github.com/netpulsehq/collector/internal/metrics"
	"github.com/netpulsehq/collector/internal/probe"
	"github.com/netpulsehq/collector/pkg/types"
)

// Dispatcher receives all samples emitted by one completed probe run.
type Dispatcher interface {
	Dispatch(dataType string, samples []types.Sample)
}

// RunObserver is notified of every probe run outcome. The readiness
// checker implements it.
type RunObserver interface {
	ObserveRun(probe string, ts time.Time, err error)
}

// RunnerConfig resolves one probe instance to its tick cadence and
// output chains.
type RunnerConfig struct {
	Probe    probe.Probe
	DataType string
	Interval time.Duration

	Dispatcher Dispatcher
	Logger     *slog.Logger
	Metrics    metrics.ProbeRecorder
	Events     events.Recorder
	Observer   RunObserver

	// Limiter optionally caps probe launches across runners. A denied
	// launch skips the tick.
	Limiter *rate.Limiter
}

// Runner fires its probe once per interval on a fixed-rate clock. A
// tick that overruns the interval causes the next tick to be skipped
// rather than queued. A failed run emits nothing and never stops the
// runner.
type Runner struct {
	cfg RunnerConfig

	now      func() time.Time
	newRunID func() string
}

type RunnerOption func(*Runner)

func WithNow(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func WithRunIDs(fn func() string) RunnerOption {
	return func(r *Runner) {
		if fn != nil {
			r.newRunID = fn
		}
	}
}

func NewRunner(cfg RunnerConfig, opts ...RunnerOption) (*Runner, error) {
	if cfg.Probe == nil {
		return nil, errNilProbe
	}
	if cfg.Interval <= 0 {
		return nil, errBadInterval
	}
	if cfg.DataType == "" {
		return nil, errNoDataType
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopProbeRecorder{}
	}
	if cfg.Events == nil {
		cfg.Events = events.NoopRecorder{}
	}
	r := &Runner{
		cfg:      cfg,
		now:      time.Now,
		newRunID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Runner) Name() string { return r.cfg.Probe.Name() }

// loop ticks until tickCtx is cancelled. Probe executions run under
// execCtx so the scheduler can hard-cancel in-flight runs after the
// shutdown grace period.
func (r *Runner) loop(tickCtx, execCtx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-tickCtx.Done():
			return
		case <-ticker.C:
			if r.cfg.Limiter != nil && !r.cfg.Limiter.Allow() {
				r.skipTick("launch rate capped")
				continue
			}
			started := r.now()
			r.runOnce(execCtx)
			// The ticker silently drops fires while an execution
			// overruns; record one skipped tick per missed interval and
			// drain the single fire the ticker keeps queued so backlog
			// never accumulates.
			if missed := int(r.now().Sub(started) / r.cfg.Interval); missed > 0 {
				for i := 0; i < missed; i++ {
					r.skipTick("execution overran interval")
				}
				select {
				case <-ticker.C:
				default:
				}
			}
		}
	}
}

// runOnce executes the probe and commits its samples. A run either
// dispatches every emitted sample or, on error, nothing at all.
func (r *Runner) runOnce(ctx context.Context) {
	name := r.cfg.Probe.Name()
	runID := r.newRunID()
	r.cfg.Metrics.IncProbeRuns(name)

	report, err := r.cfg.Probe.Run(ctx)
	if r.cfg.Observer != nil {
		r.cfg.Observer.ObserveRun(name, r.now().UTC(), err)
	}
	if err != nil {
		r.cfg.Metrics.IncProbeErrors(name)
		r.cfg.Events.Record(types.Event{
			Type:      types.EventProbeError,
			Timestamp: r.now().UTC(),
			ProbeName: name,
			Details:   map[string]any{"run_id": runID, "error": err.Error()},
		})
		if r.cfg.Logger != nil {
			r.cfg.Logger.Warn("probe run failed", "probe", name, "run_id", runID, "error", err)
		}
		return
	}

	for _, failure := range report.Failures {
		r.cfg.Metrics.IncHostFailures(name)
		r.cfg.Events.Record(types.Event{
			Type:      types.EventHostUnreachable,
			Timestamp: r.now().UTC(),
			ProbeName: name,
			Key:       failure.Host,
			Details:   map[string]any{"run_id": runID, "reason": failure.Reason},
		})
		if r.cfg.Logger != nil {
			r.cfg.Logger.Warn("host unreachable", "probe", name, "host", failure.Host, "reason", failure.Reason)
		}
	}

	if len(report.Samples) == 0 {
		return
	}

	samples := make([]types.Sample, len(report.Samples))
	for i, s := range report.Samples {
		s.RunID = runID
		samples[i] = s
		r.cfg.Metrics.IncSamplesEmitted(name)
	}
	if r.cfg.Dispatcher != nil {
		r.cfg.Dispatcher.Dispatch(r.cfg.DataType, samples)
	}
}

func (r *Runner) skipTick(reason string) {
	name := r.cfg.Probe.Name()
	r.cfg.Metrics.IncTicksSkipped(name)
	r.cfg.Events.Record(types.Event{
		Type:      types.EventTickSkip,
		Timestamp: r.now().UTC(),
		ProbeName: name,
		Details:   map[string]any{"reason": reason},
	})
	if r.cfg.Logger != nil {
		r.cfg.Logger.Debug("tick skipped", "probe", name, "reason", reason)
	}
}
