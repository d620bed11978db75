package metrics

// PipelineObserver receives pipeline events for export to an external
// metrics system. The aggregator remains the source the client reads;
// an observer is an optional mirror.
type PipelineObserver interface {
	RecordAttempt(success bool, durationSeconds float64)
	RecordRetry()
	RecordDeadLetter()
	AddBytes(n int)
	ObserveQueueDepth(n int)
}
