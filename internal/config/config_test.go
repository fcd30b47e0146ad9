package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
probes:
  - name: latency
    type: fping
    interval: 3s
    count: 5
    period: 20
    output: [ts]
    groups:
      - name: public_dns
        hosts:
          - host: 8.8.8.8
            name: Google
            color: red
          - host: 1.1.1.1
            name: Cloudflare
            color: blue
  - name: path
    type: fping_mtr
    interval: 60
    output: [ts]
    groups:
      - name: public_dns
        hosts:
          - host: 8.8.8.8
plugins:
  - name: fping
    type: fping
    command: fping
  - name: ts
    type: timeseries
    data:
      - type: fping
        handlers:
          - type: index
            field: host
          - type: store
            container: list
            size: 500
      - type: fping_mtr
        handlers:
          - type: index
            field: host
          - type: store
            size: 100
    apps:
      web:
        enabled: true
        listen: 127.0.0.1:7021
        graphs:
          - type: multitarget
            id_field: host
            plot_y: avg
            format_y: ms
logging:
  level: debug
  format: json
rate_governance:
  enabled: true
  launches_per_sec: 10
  burst: 20
`

var knownTypes = []string{"fping", "fping_mtr"}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collector.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(knownTypes); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if len(cfg.Probes) != 2 {
		t.Fatalf("expected 2 probes got %d", len(cfg.Probes))
	}
	if cfg.Probes[0].Interval.Std() != 3*time.Second {
		t.Fatalf("expected 3s interval got %v", cfg.Probes[0].Interval.Std())
	}
	// Bare integers are seconds.
	if cfg.Probes[1].Interval.Std() != time.Minute {
		t.Fatalf("expected 60s interval got %v", cfg.Probes[1].Interval.Std())
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.RateGovernance == nil || cfg.RateGovernance.LaunchesPerSec != 10 {
		t.Fatalf("unexpected rate governance: %+v", cfg.RateGovernance)
	}

	sink, ok := cfg.PluginByType(SinkType)
	if !ok {
		t.Fatalf("expected a sink plugin")
	}
	if len(sink.Data) != 2 || sink.Data[0].Handlers[1].Size != 500 {
		t.Fatalf("unexpected sink config: %+v", sink)
	}
	if sink.Apps.Web == nil || sink.Apps.Web.Listen != "127.0.0.1:7021" {
		t.Fatalf("unexpected web app config: %+v", sink.Apps)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "non-positive interval",
			mutate:  func(c *Config) { c.Probes[0].Interval = 0 },
			wantErr: "interval must be positive",
		},
		{
			name:    "unknown probe type",
			mutate:  func(c *Config) { c.Probes[0].Type = "carrier_pigeon" },
			wantErr: "unknown type",
		},
		{
			name:    "dangling output",
			mutate:  func(c *Config) { c.Probes[0].Output = []string{"missing"} },
			wantErr: "undeclared plugin",
		},
		{
			name:    "duplicate probe name",
			mutate:  func(c *Config) { c.Probes[1].Name = c.Probes[0].Name },
			wantErr: "duplicate probe name",
		},
		{
			name:    "no hosts",
			mutate:  func(c *Config) { c.Probes[0].Groups = nil },
			wantErr: "no hosts",
		},
		{
			name:    "host entry without host",
			mutate:  func(c *Config) { c.Probes[0].Groups[0].Hosts[0].Host = "" },
			wantErr: "without host",
		},
		{
			name: "unknown handler type",
			mutate: func(c *Config) {
				c.Plugins[1].Data[0].Handlers[0].Type = "transmogrify"
			},
			wantErr: "unknown handler type",
		},
		{
			name: "index without field",
			mutate: func(c *Config) {
				c.Plugins[1].Data[0].Handlers[0].Field = ""
			},
			wantErr: "requires field",
		},
		{
			name: "store with zero size",
			mutate: func(c *Config) {
				c.Plugins[1].Data[0].Handlers[1].Size = 0
			},
			wantErr: "size must be positive",
		},
		{
			name: "unknown container",
			mutate: func(c *Config) {
				c.Plugins[1].Data[0].Handlers[1].Container = "btree"
			},
			wantErr: "unknown container",
		},
		{
			name: "second timeseries plugin",
			mutate: func(c *Config) {
				c.Plugins = append(c.Plugins, PluginConfig{Name: "ts2", Type: SinkType})
			},
			wantErr: "multiple timeseries plugins",
		},
		{
			name: "unknown graph type",
			mutate: func(c *Config) {
				c.Plugins[1].Apps.Web.Graphs[0].Type = "piechart"
			},
			wantErr: "unknown graph type",
		},
		{
			name: "web app without listen",
			mutate: func(c *Config) {
				c.Plugins[1].Apps.Web.Listen = ""
			},
			wantErr: "requires listen",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validYAML))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tc.mutate(&cfg)
			err = cfg.Validate(knownTypes)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	bad := strings.Replace(validYAML, "interval: 3s", "interval: soon", 1)
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatalf("expected parse error for invalid duration")
	}
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, validYAML)
	t.Setenv("NETPULSE_COLLECTOR_CONFIG", path)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if len(cfg.Probes) != 2 {
		t.Fatalf("expected config from env path")
	}
}
