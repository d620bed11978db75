package req

type SubmitRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Content   any    `json:"content" binding:"required"`
	Priority  string `json:"priority"`
}

type SubmitBatchRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Contents  []any  `json:"contents" binding:"required,min=1"`
	Priority  string `json:"priority"`
}

// UpdateConfigRequest carries a partial pipeline reconfiguration; absent
// fields keep their current value. Durations are Go duration strings.
type UpdateConfigRequest struct {
	Endpoint             *string `json:"endpoint"`
	AuthToken            *string `json:"auth_token"`
	MaxRetries           *int    `json:"max_retries"`
	BaseRetryDelay       *string `json:"base_retry_delay"`
	BatchSize            *int    `json:"batch_size"`
	TargetRate           *int    `json:"target_rate"`
	RateCeiling          *int    `json:"rate_ceiling"`
	RequestTimeout       *string `json:"request_timeout"`
	TickInterval         *string `json:"tick_interval"`
	CompressionEnabled   *bool   `json:"compression_enabled"`
	CompressionThreshold *int    `json:"compression_threshold"`
	EncryptionEnabled    *bool   `json:"encryption_enabled"`
	EncryptionKey        *string `json:"encryption_key"` // hex encoded
	PersistenceEnabled   *bool   `json:"persistence_enabled"`
}

type NetworkStateRequest struct {
	Online *bool  `json:"online" binding:"required"`
	Class  string `json:"class"`
}
