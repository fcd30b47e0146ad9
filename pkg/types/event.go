package types

import "time"

type EventType string

const (
	EventProbeError      EventType = "ProbeError"
	EventHostUnreachable EventType = "HostUnreachable"
	EventSampleDrop      EventType = "SampleDrop"
	EventStoreEvict      EventType = "StoreEvict"
	EventTickSkip        EventType = "TickSkip"
)

type Event struct {
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"ts"`
	ProbeName string            `json:"probe_name,omitempty"`
	Key       string            `json:"key,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Details   map[string]any    `json:"details,omitempty"`
}
