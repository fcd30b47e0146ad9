package metrics

// ProbeRecorder receives per-tick outcomes from probe runners.
type ProbeRecorder interface {
	IncProbeRuns(probe string)
	IncProbeErrors(probe string)
	IncHostFailures(probe string)
	IncTicksSkipped(probe string)
	IncSamplesEmitted(probe string)
}

type NoopProbeRecorder struct{}

func (NoopProbeRecorder) IncProbeRuns(probe string)      {}
func (NoopProbeRecorder) IncProbeErrors(probe string)    {}
func (NoopProbeRecorder) IncHostFailures(probe string)   {}
func (NoopProbeRecorder) IncTicksSkipped(probe string)   {}
func (NoopProbeRecorder) IncSamplesEmitted(probe string) {}

// PipelineRecorder receives handler chain outcomes.
type PipelineRecorder interface {
	IncHandlerDrops(dataType string)
	IncStoreWrites(dataType string)
}

type NoopPipelineRecorder struct{}

func (NoopPipelineRecorder) IncHandlerDrops(dataType string) {}
func (NoopPipelineRecorder) IncStoreWrites(dataType string)  {}

// StoreRecorder receives bounded store telemetry.
type StoreRecorder interface {
	IncEvictions()
	ObserveKeyCount(keys int)
}

type NoopStoreRecorder struct{}

func (NoopStoreRecorder) IncEvictions()            {}
func (NoopStoreRecorder) ObserveKeyCount(keys int) {}
