package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/netpulsehq/collector/internal/logging"
)

const (
	envConfigPath     = "NETPULSE_COLLECTOR_CONFIG"
	DefaultConfigPath = "/etc/netpulse/collector.yaml"
)

// Duration accepts either a duration string ("3s", "1m") or a bare
// integer interpreted as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Probes         []ProbeConfig         `yaml:"probes"`
	Plugins        []PluginConfig        `yaml:"plugins"`
	Logging        logging.Config        `yaml:"logging"`
	RateGovernance *RateGovernanceConfig `yaml:"rate_governance"`
}

type ProbeConfig struct {
	Name     string        `yaml:"name"`
	Type     string        `yaml:"type"`
	Interval Duration      `yaml:"interval"`
	Timeout  Duration      `yaml:"timeout"`
	Count    int           `yaml:"count"`
	Period   int           `yaml:"period"`
	Output   []string      `yaml:"output"`
	Groups   []GroupConfig `yaml:"groups"`
}

type GroupConfig struct {
	Name  string       `yaml:"name"`
	Hosts []HostConfig `yaml:"hosts"`
}

type HostConfig struct {
	Host  string `yaml:"host"`
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

type PluginConfig struct {
	Name    string       `yaml:"name"`
	Type    string       `yaml:"type"`
	Command string       `yaml:"command"`
	Data    []DataConfig `yaml:"data"`
	Apps    AppsConfig   `yaml:"apps"`
}

type DataConfig struct {
	Type     string          `yaml:"type"`
	Handlers []HandlerConfig `yaml:"handlers"`
}

type HandlerConfig struct {
	Type      string `yaml:"type"`
	Field     string `yaml:"field"`
	Container string `yaml:"container"`
	Size      int    `yaml:"size"`
}

type AppsConfig struct {
	Web *WebAppConfig `yaml:"web"`
}

type WebAppConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Graphs  []GraphConfig `yaml:"graphs"`
}

type GraphConfig struct {
	Type    string `yaml:"type"`
	IDField string `yaml:"id_field"`
	PlotY   string `yaml:"plot_y"`
	FormatY string `yaml:"format_y"`
}

type RateGovernanceConfig struct {
	Enabled        bool    `yaml:"enabled"`
	LaunchesPerSec float64 `yaml:"launches_per_sec"`
	Burst          int     `yaml:"burst"`
}

func Load(path string) (Config, error) {
	var cfg Config

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	return cfg, nil
}

func LoadFromEnv() (Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	return Load(path)
}

// Plugin returns the named plugin declaration.
func (c Config) Plugin(name string) (PluginConfig, bool) {
	for _, p := range c.Plugins {
		if p.Name == name {
			return p, true
		}
	}
	return PluginConfig{}, false
}

// PluginByType returns the first plugin of the given type.
func (c Config) PluginByType(pluginType string) (PluginConfig, bool) {
	for _, p := range c.Plugins {
		if p.Type == pluginType {
			return p, true
		}
	}
	return PluginConfig{}, false
}
