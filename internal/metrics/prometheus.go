package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	transmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsewire_transmissions_total",
		Help: "Transmission attempts by result",
	}, []string{"result"})
	transmissionLatency = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "pulsewire_transmission_duration_seconds",
		Help: "Duration of transmission attempts",
	})
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsewire_retries_total",
		Help: "Items requeued after a retriable failure",
	})
	deadLettersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsewire_dead_letters_total",
		Help: "Items dropped after exhausting retries",
	})
	bytesTransmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsewire_bytes_transmitted_total",
		Help: "Wire bytes successfully delivered",
	})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsewire_queue_depth",
		Help: "Items pending in the transmission queue",
	})
)

type prometheusObserver struct{}

// NewPrometheusObserver mirrors pipeline events into the default
// prometheus registry, served by Handler.
func NewPrometheusObserver() PipelineObserver {
	return prometheusObserver{}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (prometheusObserver) RecordAttempt(success bool, durationSeconds float64) {
	result := "failure"
	if success {
		result = "success"
	}
	transmissionsTotal.WithLabelValues(result).Inc()
	transmissionLatency.Observe(durationSeconds)
}

func (prometheusObserver) RecordRetry() {
	retriesTotal.Inc()
}

func (prometheusObserver) RecordDeadLetter() {
	deadLettersTotal.Inc()
}

func (prometheusObserver) AddBytes(n int) {
	bytesTransmitted.Add(float64(n))
}

func (prometheusObserver) ObserveQueueDepth(n int) {
	queueDepth.Set(float64(n))
}
