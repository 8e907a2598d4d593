package telemetry

// Metrics recorded by the rest of the daemon. All default to noops so that
// library embedders and tests that never call Initialize pay nothing.
var (
	// HighWaterGauge is the last published high-water mark.
	HighWaterGauge Gauge = NoopStat{}
	// Polls counts detector polls by classification outcome.
	Polls CounterVec = noopCounterVec{}
	// DetectorFailures counts transient detection failures absorbed by the
	// polling loop.
	DetectorFailures Counter = NoopStat{}
	// LoopRestarts counts health-check driven restarts of the polling loop.
	LoopRestarts Counter = NoopStat{}
	// EventsAppended counts events written to the local log store.
	EventsAppended Counter = NoopStat{}
	// ProgressPublished counts progress events forwarded to external sinks.
	ProgressPublished Counter = NoopStat{}
	// ProgressPublishFailures counts failed sink publications.
	ProgressPublishFailures Counter = NoopStat{}
)

func initMetrics() {
	HighWaterGauge = NewGauge("high_water_mark", "Last published high-water mark")
	Polls = NewCounterVec("polls_total", "Detector polls by classification outcome", "status")
	DetectorFailures = NewCounter("detector_failures_total", "Transient detection failures absorbed by the polling loop")
	LoopRestarts = NewCounter("loop_restarts_total", "Health-check driven restarts of the polling loop")
	EventsAppended = NewCounter("events_appended_total", "Events written to the local log store")
	ProgressPublished = NewCounter("progress_published_total", "Progress events forwarded to external sinks")
	ProgressPublishFailures = NewCounter("progress_publish_failures_total", "Failed sink publications")
}
