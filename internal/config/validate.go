package config

import (
	"fmt"
	"slices"
)

// SinkType is the plugin type that hosts handler chains and the
// embedded web app.
const SinkType = "timeseries"

const (
	HandlerIndex = "index"
	HandlerStore = "store"
)

// ContainerList is the only store container kind currently shipped.
const ContainerList = "list"

// Validate rejects configurations that must never reach the runtime:
// unknown types, non-positive intervals, dangling output references.
// probeTypes is the registry's set of known probe type names.
func (c Config) Validate(probeTypes []string) error {
	if len(c.Probes) == 0 {
		return fmt.Errorf("config declares no probes")
	}

	pluginNames := make(map[string]struct{}, len(c.Plugins))
	sinkSeen := false
	for _, p := range c.Plugins {
		if p.Name == "" {
			return fmt.Errorf("plugin with empty name")
		}
		if _, dup := pluginNames[p.Name]; dup {
			return fmt.Errorf("duplicate plugin name %q", p.Name)
		}
		pluginNames[p.Name] = struct{}{}

		if p.Type == SinkType {
			if sinkSeen {
				return fmt.Errorf("multiple %s plugins declared (%q)", SinkType, p.Name)
			}
			sinkSeen = true
			if err := validateSink(p); err != nil {
				return err
			}
			continue
		}
		if !slices.Contains(probeTypes, p.Type) {
			return fmt.Errorf("plugin %q has unknown type %q", p.Name, p.Type)
		}
	}

	probeNames := make(map[string]struct{}, len(c.Probes))
	for _, p := range c.Probes {
		if p.Name == "" {
			return fmt.Errorf("probe with empty name")
		}
		if _, dup := probeNames[p.Name]; dup {
			return fmt.Errorf("duplicate probe name %q", p.Name)
		}
		probeNames[p.Name] = struct{}{}

		if !slices.Contains(probeTypes, p.Type) {
			return fmt.Errorf("probe %q has unknown type %q", p.Name, p.Type)
		}
		if p.Interval.Std() <= 0 {
			return fmt.Errorf("probe %q interval must be positive", p.Name)
		}
		if len(p.Output) == 0 {
			return fmt.Errorf("probe %q declares no output targets", p.Name)
		}
		for _, out := range p.Output {
			if _, ok := pluginNames[out]; !ok {
				return fmt.Errorf("probe %q output %q references an undeclared plugin", p.Name, out)
			}
		}
		hostCount := 0
		for _, g := range p.Groups {
			for _, h := range g.Hosts {
				if h.Host == "" {
					return fmt.Errorf("probe %q group %q has a host entry without host", p.Name, g.Name)
				}
				hostCount++
			}
		}
		if hostCount == 0 {
			return fmt.Errorf("probe %q has no hosts", p.Name)
		}
	}

	return nil
}

func validateSink(p PluginConfig) error {
	if len(p.Data) == 0 {
		return fmt.Errorf("sink plugin %q declares no data chains", p.Name)
	}
	for _, d := range p.Data {
		if d.Type == "" {
			return fmt.Errorf("sink plugin %q has a data chain without type", p.Name)
		}
		if len(d.Handlers) == 0 {
			return fmt.Errorf("sink plugin %q data %q has no handlers", p.Name, d.Type)
		}
		for _, h := range d.Handlers {
			switch h.Type {
			case HandlerIndex:
				if h.Field == "" {
					return fmt.Errorf("sink plugin %q data %q: index handler requires field", p.Name, d.Type)
				}
			case HandlerStore:
				container := h.Container
				if container == "" {
					container = ContainerList
				}
				if container != ContainerList {
					return fmt.Errorf("sink plugin %q data %q: unknown container %q", p.Name, d.Type, h.Container)
				}
				if h.Size <= 0 {
					return fmt.Errorf("sink plugin %q data %q: store size must be positive", p.Name, d.Type)
				}
			default:
				return fmt.Errorf("sink plugin %q data %q: unknown handler type %q", p.Name, d.Type, h.Type)
			}
		}
	}
	if p.Apps.Web != nil && p.Apps.Web.Enabled {
		if p.Apps.Web.Listen == "" {
			return fmt.Errorf("sink plugin %q web app requires listen address", p.Name)
		}
		for _, g := range p.Apps.Web.Graphs {
			switch g.Type {
			case "multitarget", "smokestack", "mtr":
			default:
				return fmt.Errorf("sink plugin %q: unknown graph type %q", p.Name, g.Type)
			}
		}
	}
	return nil
}
