package runtime

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/netpulsehq/collector/internal/config"
	"github.com/netpulsehq/collector/internal/probe"
	"github.com/netpulsehq/collector/internal/query"
	"github.com/netpulsehq/collector/pkg/types"
)

type fakeProbe struct {
	name string
	host string
	runs atomic.Int64
}

func (p *fakeProbe) Name() string { return p.name }

func (p *fakeProbe) Run(ctx context.Context) (probe.Report, error) {
	p.runs.Add(1)
	return probe.Report{Samples: []types.Sample{{
		ProbeName: p.name,
		EmittedAt: time.Now().UTC(),
		Payload:   types.PingStats{Host: p.host, Sent: 5, Avg: 12},
	}}}, nil
}

type failingProbe struct {
	name string
	runs atomic.Int64
}

func (p *failingProbe) Name() string { return p.name }

func (p *failingProbe) Run(ctx context.Context) (probe.Report, error) {
	p.runs.Add(1)
	return probe.Report{}, errors.New("fping exited 1")
}

func testConfig() config.Config {
	return config.Config{
		Probes: []config.ProbeConfig{{
			Name:     "latency",
			Type:     "fping",
			Interval: config.Duration(10 * time.Millisecond),
			Output:   []string{"ts"},
			Groups: []config.GroupConfig{{
				Name: "dns",
				Hosts: []config.HostConfig{
					{Host: "8.8.8.8", Name: "Google", Color: "red"},
				},
			}},
		}},
		Plugins: []config.PluginConfig{{
			Name: "ts",
			Type: config.SinkType,
			Data: []config.DataConfig{{
				Type: "fping",
				Handlers: []config.HandlerConfig{
					{Type: config.HandlerIndex, Field: "host"},
					{Type: config.HandlerStore, Size: 50},
				},
			}},
			Apps: config.AppsConfig{Web: &config.WebAppConfig{
				Enabled: true,
				Listen:  "127.0.0.1:0",
				Graphs:  []config.GraphConfig{{Type: "multitarget", PlotY: "avg"}},
			}},
		}},
	}
}

func TestBuildAndRunEndToEnd(t *testing.T) {
	fp := &fakeProbe{name: "latency", host: "8.8.8.8"}
	rt, err := Build(testConfig(), WithProbeFactory(func(spec probe.Spec) (probe.Probe, error) {
		if spec.Type != "fping" || len(spec.Hosts) != 1 {
			t.Fatalf("unexpected spec: %+v", spec)
		}
		return fp, nil
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if rt.Runners() != 1 {
		t.Fatalf("expected 1 runner got %d", rt.Runners())
	}

	wait, err := rt.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for fp.runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("probe never ran twice")
		case <-time.After(5 * time.Millisecond):
		}
	}
	wait()

	series, err := rt.Facade().Series("fping", "8.8.8.8", query.Window{})
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(series.Points) == 0 {
		t.Fatalf("expected samples to reach the store")
	}
	if series.Points[0].Avg != 12 {
		t.Fatalf("unexpected point: %+v", series.Points[0])
	}

	ready, reasons := rt.Health().Ready(time.Now().UTC())
	if !ready {
		t.Fatalf("expected ready after successful runs: %v", reasons)
	}
	snap := rt.Metrics().Snapshot()
	if snap.ProbeRuns["latency"] == 0 || snap.StoreWrites["fping"] == 0 {
		t.Fatalf("expected run and write counters, got %+v", snap)
	}
}

func TestBuildWiresWebServer(t *testing.T) {
	rt, err := Build(testConfig(), WithProbeFactory(func(spec probe.Spec) (probe.Probe, error) {
		return &fakeProbe{name: spec.Name, host: "8.8.8.8"}, nil
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	srv := rt.WebServer()
	if srv == nil {
		t.Fatalf("expected web server when app enabled")
	}

	req := httptest.NewRequest(http.MethodGet, "/targets", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /targets got %d", rec.Code)
	}
}

func TestBuildWithoutWebApp(t *testing.T) {
	cfg := testConfig()
	cfg.Plugins[0].Apps.Web = nil

	rt, err := Build(cfg, WithProbeFactory(func(spec probe.Spec) (probe.Probe, error) {
		return &fakeProbe{name: spec.Name, host: "8.8.8.8"}, nil
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if rt.WebServer() != nil {
		t.Fatalf("expected no web server")
	}
}

func TestBuildSkipsDispatchForUnroutedOutput(t *testing.T) {
	cfg := testConfig()
	cfg.Plugins = append(cfg.Plugins, config.PluginConfig{Name: "elsewhere", Type: "fping"})
	cfg.Probes[0].Output = []string{"elsewhere"}

	fp := &fakeProbe{name: "latency", host: "8.8.8.8"}
	rt, err := Build(cfg, WithProbeFactory(func(spec probe.Spec) (probe.Probe, error) {
		return fp, nil
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wait, err := rt.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for fp.runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("probe never ran twice")
		case <-time.After(5 * time.Millisecond):
		}
	}
	wait()

	if got := rt.Metrics().Snapshot().StoreWrites["fping"]; got != 0 {
		t.Fatalf("samples reached the store despite output not naming the sink: %d writes", got)
	}
}

func TestBuildMirrorsEventsIntoLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	fp := &failingProbe{name: "latency"}
	rt, err := Build(testConfig(), WithLogger(logger), WithProbeFactory(func(spec probe.Spec) (probe.Probe, error) {
		return fp, nil
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wait, err := rt.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for fp.runs.Load() < 1 {
		select {
		case <-deadline:
			t.Fatalf("probe never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	wait()

	out := buf.String()
	if !strings.Contains(out, "pipeline event") || !strings.Contains(out, string(types.EventProbeError)) {
		t.Fatalf("expected the probe error mirrored into the log:\n%s", out)
	}
	if !strings.Contains(out, `"component":"events"`) || !strings.Contains(out, `"component":"scheduler"`) {
		t.Fatalf("expected component-tagged loggers:\n%s", out)
	}
	if rt.Events().Len() == 0 {
		t.Fatalf("expected the event ring to retain the error as well")
	}
}

func TestBuildPropagatesProbeFactoryError(t *testing.T) {
	boom := errors.New("no such binary")
	_, err := Build(testConfig(), WithProbeFactory(func(spec probe.Spec) (probe.Probe, error) {
		return nil, boom
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
}

func TestBuildRejectsUnknownHandler(t *testing.T) {
	cfg := testConfig()
	cfg.Plugins[0].Data[0].Handlers[0].Type = "transmogrify"

	_, err := Build(cfg, WithProbeFactory(func(spec probe.Spec) (probe.Probe, error) {
		return &fakeProbe{name: spec.Name, host: "8.8.8.8"}, nil
	}))
	if err == nil {
		t.Fatalf("expected error for unknown handler type")
	}
}
