package v1

import (
	"time"
)

// Metadata rides along with every payload. The transform fields stay empty
// until the outbound chain has run; they describe what is actually on the
// wire, not what the configuration asked for.
type Metadata struct {
	Platform      string `json:"platform" msgpack:"platform"`
	SchemaVersion string `json:"schema_version" msgpack:"schema_version"`
	BatchSize     int    `json:"batch_size" msgpack:"batch_size"`
	Compression   string `json:"compression,omitempty" msgpack:"compression,omitempty"`
	Encryption    string `json:"encryption,omitempty" msgpack:"encryption,omitempty"`
	RetryAttempt  int    `json:"retry_attempt" msgpack:"retry_attempt"`
}

// Payload is one opaque unit of telemetry. Content is never inspected by
// the pipeline.
type Payload struct {
	Content   any       `json:"content" msgpack:"content"`
	SessionID string    `json:"session_id" msgpack:"session_id"`
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
	Metadata  Metadata  `json:"metadata" msgpack:"metadata"`
}

// TransmissionResult is produced exactly once per transmission attempt.
type TransmissionResult struct {
	Success      bool          `json:"success"`
	StatusCode   int           `json:"status_code,omitempty"`
	Response     []byte        `json:"response,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
	RetryAttempt int           `json:"retry_attempt"`
}

// Metrics is a point-in-time snapshot of the pipeline counters. It is a
// derived view rebuilt from transmission results, not a source of truth.
type Metrics struct {
	TotalTransmissions      uint64        `json:"total_transmissions"`
	SuccessfulTransmissions uint64        `json:"successful_transmissions"`
	FailedTransmissions     uint64        `json:"failed_transmissions"`
	AverageLatency          time.Duration `json:"average_latency"`
	BytesTransmitted        uint64        `json:"bytes_transmitted"`
	CompressionRatio        float64       `json:"compression_ratio"`
	RetryRate               float64       `json:"retry_rate"`
	QueueDepth              int           `json:"queue_depth"`
}

// QueueStatus summarizes the pending backlog.
type QueueStatus struct {
	Count            int            `json:"count"`
	CountsByPriority map[string]int `json:"counts_by_priority"`
	OldestEnqueuedAt time.Time      `json:"oldest_enqueued_at,omitzero"`
	NewestEnqueuedAt time.Time      `json:"newest_enqueued_at,omitzero"`
}
