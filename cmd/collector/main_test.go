package main

import (
	"os"
	"path/filepath"
	"testing"
)

const testYAML = `
probes:
  - name: latency
    type: fping
    interval: 3s
    output: [ts]
    groups:
      - name: dns
        hosts:
          - host: 8.8.8.8
plugins:
  - name: ts
    type: timeseries
    data:
      - type: fping
        handlers:
          - type: index
            field: host
          - type: store
            size: 100
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collector.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestValidateCommand(t *testing.T) {
	path := writeTestConfig(t, testYAML)
	if err := validate([]string{"--config", path}); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateCommandRejectsBadConfig(t *testing.T) {
	path := writeTestConfig(t, "probes: []\n")
	if err := validate([]string{"--config", path}); err == nil {
		t.Fatalf("expected validation failure for empty probe list")
	}
}

func TestLoadConfigFallsBackToEnv(t *testing.T) {
	path := writeTestConfig(t, testYAML)
	t.Setenv("NETPULSE_COLLECTOR_CONFIG", path)

	cfg, err := loadConfig(nil, "run")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if len(cfg.Probes) != 1 {
		t.Fatalf("expected config loaded from env path")
	}
}
