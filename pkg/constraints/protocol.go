package constraints

// Priority orders pending telemetry items. Higher values dispatch first;
// items of equal priority dispatch in enqueue order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority maps the external string form back to a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "low":
		return PriorityLow, true
	case "medium":
		return PriorityMedium, true
	case "high":
		return PriorityHigh, true
	case "critical":
		return PriorityCritical, true
	}
	return PriorityLow, false
}

// Escalated returns the priority promoted one step, capped at high.
// Critical stays critical. Used by the post-reconnect backlog drain.
func (p Priority) Escalated() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	default:
		return p
	}
}

// ConnectionClass is the qualitative link quality reported by the
// network-state signal.
type ConnectionClass string

const (
	ClassPoor ConnectionClass = "poor"
	ClassFair ConnectionClass = "fair"
	ClassGood ConnectionClass = "good"
)

// Headers attached to ingestion requests.
const (
	HeaderSessionID  = "X-Session-ID"
	HeaderItemID     = "X-Item-ID"
	HeaderPriority   = "X-Priority"
	HeaderEncryption = "X-Encryption"
	// HeaderAgentKey authenticates producers against the local agent.
	HeaderAgentKey = "X-Pulse-Key"
)

// Transform algorithm identifiers recorded in payload metadata and on the
// wire so the receiver can reverse the transforms.
const (
	CompressionGzip  = "gzip"
	EncryptionAESGCM = "aes-256-gcm"
)
