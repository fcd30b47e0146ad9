// Package runtime assembles a running collector from a loaded config:
// probes, runners, handler chains, bounded stores, the query facade,
// and the optional web app.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/netpulsehq/collector/internal/config"
	"github.com/netpulsehq/collector/internal/events"
	"github.com/netpulsehq/collector/internal/health"
	"github.com/netpulsehq/collector/internal/logging"
	"github.com/netpulsehq/collector/internal/metrics"
	"github.com/netpulsehq/collector/internal/pipeline"
	"github.com/netpulsehq/collector/internal/probe"
	"github.com/netpulsehq/collector/internal/query"
	"github.com/netpulsehq/collector/internal/scheduler"
	"github.com/netpulsehq/collector/internal/server"
	"github.com/netpulsehq/collector/internal/store"
)

const defaultEventCapacity = 512

type Option func(*options)

type options struct {
	logger        *slog.Logger
	metricsStore  *metrics.Store
	eventCapacity int
	probeFactory  func(probe.Spec) (probe.Probe, error)
	runnerOpts    []scheduler.RunnerOption
	schedulerOpts []scheduler.Option
	serverCfg     server.Config
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetricsStore(store *metrics.Store) Option {
	return func(o *options) {
		if store != nil {
			o.metricsStore = store
		}
	}
}

func WithEventCapacity(capacity int) Option {
	return func(o *options) {
		if capacity > 0 {
			o.eventCapacity = capacity
		}
	}
}

// WithProbeFactory replaces the registry lookup used to build probes.
func WithProbeFactory(factory func(probe.Spec) (probe.Probe, error)) Option {
	return func(o *options) {
		if factory != nil {
			o.probeFactory = factory
		}
	}
}

func WithRunnerOptions(opts ...scheduler.RunnerOption) Option {
	return func(o *options) {
		o.runnerOpts = append(o.runnerOpts, opts...)
	}
}

func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(o *options) {
		o.schedulerOpts = append(o.schedulerOpts, opts...)
	}
}

// WithServerConfig overrides HTTP timeouts. The listen address still
// comes from the web app config.
func WithServerConfig(cfg server.Config) Option {
	return func(o *options) {
		o.serverCfg = cfg
	}
}

// Runtime holds the assembled collector components.
type Runtime struct {
	logger    *slog.Logger
	metrics   *metrics.Store
	events    *events.Ring
	checker   *health.Checker
	scheduler *scheduler.Scheduler
	facade    *query.Facade
	web       *server.Server
}

// Build wires every component the config declares. The config must
// already be validated.
func Build(cfg config.Config, opts ...Option) (*Runtime, error) {
	o := options{
		eventCapacity: defaultEventCapacity,
		probeFactory:  probe.New,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metricsStore == nil {
		o.metricsStore = metrics.NewStore()
	}

	ring := events.NewRing(o.eventCapacity)
	checker := health.NewChecker(o.metricsStore)
	// Events land in the ring (served on /events) and are mirrored into
	// the structured log.
	recorder := events.NewMulti(ring, events.NewLogRecorder(logging.Component(o.logger, "events")))

	sink, hasSink := cfg.PluginByType(config.SinkType)

	dispatcher, catalog, err := buildChains(sink, hasSink, o, recorder)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if rg := cfg.RateGovernance; rg != nil && rg.Enabled {
		burst := rg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rg.LaunchesPerSec), burst)
	}

	schedLogger := logging.Component(o.logger, "scheduler")
	sched := scheduler.New(append([]scheduler.Option{scheduler.WithLogger(schedLogger)}, o.schedulerOpts...)...)
	targets := make([]query.Target, 0)

	for _, pc := range cfg.Probes {
		spec := probe.Spec{
			Name:     pc.Name,
			Type:     pc.Type,
			Interval: pc.Interval.Std(),
			Timeout:  pc.Timeout.Std(),
			Count:    pc.Count,
			Period:   pc.Period,
			Logger:   logging.Component(o.logger, "probe"),
		}
		if plugin, ok := cfg.PluginByType(pc.Type); ok {
			spec.Command = plugin.Command
		}
		for _, g := range pc.Groups {
			for _, h := range g.Hosts {
				spec.Hosts = append(spec.Hosts, probe.Host{Host: h.Host, Label: h.Name, Color: h.Color})
				targets = append(targets, query.Target{
					Group: g.Name,
					Probe: pc.Name,
					Host:  h.Host,
					Label: h.Name,
					Color: h.Color,
				})
			}
		}

		p, err := o.probeFactory(spec)
		if err != nil {
			return nil, fmt.Errorf("build probe %q: %w", pc.Name, err)
		}
		checker.Track(p.Name(), spec.Interval)

		// Samples only flow to the sink when the probe's output list
		// names it. Other outputs have no pipeline behind them yet, so
		// those probes run without a dispatcher.
		var probeDispatcher scheduler.Dispatcher
		if hasSink && slices.Contains(pc.Output, sink.Name) {
			probeDispatcher = dispatcher
		}

		runner, err := scheduler.NewRunner(scheduler.RunnerConfig{
			Probe:      p,
			DataType:   pc.Type,
			Interval:   spec.Interval,
			Dispatcher: probeDispatcher,
			Logger:     schedLogger,
			Metrics:    o.metricsStore.ProbeRecorder(),
			Events:     recorder,
			Observer:   checker,
			Limiter:    limiter,
		}, o.runnerOpts...)
		if err != nil {
			return nil, fmt.Errorf("build runner %q: %w", pc.Name, err)
		}
		if err := sched.Register(runner); err != nil {
			return nil, fmt.Errorf("register runner %q: %w", pc.Name, err)
		}
	}

	facade := query.New(catalog, targets)

	rt := &Runtime{
		logger:    o.logger,
		metrics:   o.metricsStore,
		events:    ring,
		checker:   checker,
		scheduler: sched,
		facade:    facade,
	}

	if hasSink {
		if web := sink.Apps.Web; web != nil && web.Enabled {
			srvCfg := o.serverCfg
			srvCfg.Addr = web.Listen
			rt.web = server.New(srvCfg, server.Dependencies{
				Logger:  logging.Component(o.logger, "server"),
				Queries: facade,
				Metrics: o.metricsStore,
				Health:  checker,
				Events:  ring,
				Graphs:  web.Graphs,
			})
		}
	}

	return rt, nil
}

// buildChains assembles one handler chain per declared data type and
// collects each chain's bounded store into the query catalog.
func buildChains(sink config.PluginConfig, hasSink bool, o options, recorder events.Recorder) (*pipeline.Dispatcher, query.Catalog, error) {
	catalog := query.Catalog{}
	chains := make([]*pipeline.Chain, 0)

	if !hasSink {
		return pipeline.NewDispatcher(), catalog, nil
	}

	for _, dc := range sink.Data {
		handlers := make([]pipeline.Handler, 0, len(dc.Handlers))
		for _, hc := range dc.Handlers {
			switch hc.Type {
			case config.HandlerIndex:
				h, err := pipeline.NewIndexHandler(hc.Field)
				if err != nil {
					return nil, nil, fmt.Errorf("data %q: %w", dc.Type, err)
				}
				handlers = append(handlers, h)
			case config.HandlerStore:
				st := store.New(hc.Size,
					store.WithMetricsRecorder(o.metricsStore.StoreRecorder()),
					store.WithEventRecorder(recorder),
				)
				h, err := pipeline.NewStoreHandler(st)
				if err != nil {
					return nil, nil, fmt.Errorf("data %q: %w", dc.Type, err)
				}
				handlers = append(handlers, h)
				if _, exists := catalog[dc.Type]; !exists {
					catalog[dc.Type] = st
				}
			default:
				return nil, nil, fmt.Errorf("data %q: unknown handler type %q", dc.Type, hc.Type)
			}
		}
		chain, err := pipeline.NewChain(dc.Type, handlers,
			pipeline.WithLogger(logging.Component(o.logger, "pipeline")),
			pipeline.WithMetricsRecorder(o.metricsStore.PipelineRecorder()),
			pipeline.WithEventRecorder(recorder),
		)
		if err != nil {
			return nil, nil, err
		}
		chains = append(chains, chain)
	}

	return pipeline.NewDispatcher(chains...), catalog, nil
}

// Start launches the probe runners. The returned wait func blocks
// until Stop has drained them.
func (r *Runtime) Start(ctx context.Context) (func(), error) {
	if err := r.scheduler.Start(ctx); err != nil {
		return nil, err
	}
	return func() { r.scheduler.Stop() }, nil
}

// Stop shuts the runners down with the scheduler's grace period.
func (r *Runtime) Stop() { r.scheduler.Stop() }

func (r *Runtime) Facade() *query.Facade     { return r.facade }
func (r *Runtime) Metrics() *metrics.Store   { return r.metrics }
func (r *Runtime) Events() *events.Ring      { return r.events }
func (r *Runtime) Health() *health.Checker   { return r.checker }
func (r *Runtime) WebServer() *server.Server { return r.web }
func (r *Runtime) Runners() int              { return r.scheduler.Runners() }

// WithStopGrace bounds how long Stop waits for in-flight probe runs.
func WithStopGrace(d time.Duration) Option {
	return WithSchedulerOptions(scheduler.WithStopGrace(d))
}
