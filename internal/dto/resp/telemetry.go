package resp

import (
	v1 "pulsewire/pkg/api/v1"
)

type SubmitResponse struct {
	ItemID string `json:"item_id"`
}

type SubmitBatchResponse struct {
	ItemIDs []string `json:"item_ids"`
}

type QueueResponse struct {
	v1.QueueStatus
}

type MetricsResponse struct {
	v1.Metrics
}

type FlushResponse struct {
	Flushed bool `json:"flushed"`
}
