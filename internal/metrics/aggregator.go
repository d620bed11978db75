// Package metrics accumulates transmission outcomes into running counters.
// The aggregator is a derived view over results: it can be discarded and
// rebuilt without correctness loss, and it is mutated only by the
// scheduler immediately after each transmission result.
package metrics

import (
	"sync"
	"time"

	v1 "pulsewire/pkg/api/v1"
)

type Aggregator struct {
	mu               sync.Mutex
	total            uint64
	successes        uint64
	failures         uint64
	latencySum       time.Duration
	bytesTransmitted uint64
	compressionRatio float64
	retries          uint64
	queueDepth       int
	obs              PipelineObserver
}

// NewAggregator creates an aggregator. obs may be nil.
func NewAggregator(obs PipelineObserver) *Aggregator {
	return &Aggregator{obs: obs}
}

// Record consumes one transmission result together with the wire size of
// the body that was sent. Failed attempts only show up in the failure
// counter once the item is given up on, via RecordTerminal.
func (a *Aggregator) Record(res v1.TransmissionResult, wireBytes int) {
	a.mu.Lock()
	a.total++
	if res.Success {
		a.successes++
		a.bytesTransmitted += uint64(wireBytes)
	}
	a.latencySum += res.Duration
	a.mu.Unlock()

	if a.obs != nil {
		a.obs.RecordAttempt(res.Success, res.Duration.Seconds())
		if res.Success {
			a.obs.AddBytes(wireBytes)
		}
	}
}

// RecordTerminal counts one item permanently failed after exhausting its
// retries (or hitting a non-retriable error).
func (a *Aggregator) RecordTerminal() {
	a.mu.Lock()
	a.failures++
	a.mu.Unlock()

	if a.obs != nil {
		a.obs.RecordDeadLetter()
	}
}

// RecordRetry counts one requeue after a retriable failure.
func (a *Aggregator) RecordRetry() {
	a.mu.Lock()
	a.retries++
	a.mu.Unlock()

	if a.obs != nil {
		a.obs.RecordRetry()
	}
}

// ObserveCompression stores the last measured compression ratio
// (original / compressed). Last-measured, not averaged.
func (a *Aggregator) ObserveCompression(originalSize, compressedSize int) {
	if compressedSize <= 0 {
		return
	}
	a.mu.Lock()
	a.compressionRatio = float64(originalSize) / float64(compressedSize)
	a.mu.Unlock()
}

// SetQueueDepth records the backlog size after a tick.
func (a *Aggregator) SetQueueDepth(n int) {
	a.mu.Lock()
	a.queueDepth = n
	a.mu.Unlock()

	if a.obs != nil {
		a.obs.ObserveQueueDepth(n)
	}
}

// Snapshot returns the current counters as one consistent view.
func (a *Aggregator) Snapshot() v1.Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := v1.Metrics{
		TotalTransmissions:      a.total,
		SuccessfulTransmissions: a.successes,
		FailedTransmissions:     a.failures,
		BytesTransmitted:        a.bytesTransmitted,
		CompressionRatio:        a.compressionRatio,
		QueueDepth:              a.queueDepth,
	}
	if a.total > 0 {
		m.AverageLatency = a.latencySum / time.Duration(a.total)
		m.RetryRate = float64(a.retries) / float64(a.total)
	}
	return m
}
