package api

import (
	"encoding/hex"
	"errors"
	"time"

	"pulsewire/client"
	"pulsewire/internal/dto/req"
	"pulsewire/internal/dto/resp"
	"pulsewire/internal/netmon"
	"pulsewire/pkg/constraints"

	"github.com/gin-gonic/gin"
)

var (
	errUnknownPriority  = errors.New("unknown priority")
	errBadEncryptionKey = errors.New("encryption key must be hex encoded")
)

type TelemetryHandler struct {
	pipeline *client.Client
	monitor  *netmon.Manual
}

func NewTelemetryHandler(pipeline *client.Client, monitor *netmon.Manual) *TelemetryHandler {
	return &TelemetryHandler{
		pipeline: pipeline,
		monitor:  monitor,
	}
}

func (h *TelemetryHandler) Submit(c *gin.Context) {
	var r req.SubmitRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(400, gin.H{"error": "JSON format error"})
		return
	}

	priority, err := parsePriority(r.Priority)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	id, err := h.pipeline.Transmit(r.SessionID, r.Content, priority)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(202, resp.SubmitResponse{ItemID: id})
}

func (h *TelemetryHandler) SubmitBatch(c *gin.Context) {
	var r req.SubmitBatchRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(400, gin.H{"error": "JSON format error"})
		return
	}

	priority, err := parsePriority(r.Priority)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	ids, err := h.pipeline.TransmitBatch(r.SessionID, r.Contents, priority)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(202, resp.SubmitBatchResponse{ItemIDs: ids})
}

func (h *TelemetryHandler) Flush(c *gin.Context) {
	if err := h.pipeline.Flush(c.Request.Context()); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, resp.FlushResponse{Flushed: true})
}

func (h *TelemetryHandler) Queue(c *gin.Context) {
	c.JSON(200, resp.QueueResponse{QueueStatus: h.pipeline.QueueStatus()})
}

func (h *TelemetryHandler) ClearQueue(c *gin.Context) {
	if err := h.pipeline.ClearQueue(c.Request.Context()); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"cleared": true})
}

func (h *TelemetryHandler) PipelineMetrics(c *gin.Context) {
	c.JSON(200, resp.MetricsResponse{Metrics: h.pipeline.Metrics()})
}

func (h *TelemetryHandler) UpdateConfig(c *gin.Context) {
	var r req.UpdateConfigRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(400, gin.H{"error": "JSON format error"})
		return
	}

	patch, err := buildPatch(r)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if err := h.pipeline.UpdateConfig(patch); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"updated": true})
}

// SetNetworkState lets the host report link changes to the pipeline.
func (h *TelemetryHandler) SetNetworkState(c *gin.Context) {
	var r req.NetworkStateRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(400, gin.H{"error": "JSON format error"})
		return
	}

	if r.Class == "" {
		h.monitor.SetOnline(*r.Online)
	} else {
		class := constraints.ConnectionClass(r.Class)
		switch class {
		case constraints.ClassPoor, constraints.ClassFair, constraints.ClassGood:
		default:
			c.JSON(400, gin.H{"error": "unknown connection class"})
			return
		}
		h.monitor.Set(*r.Online, class)
	}
	c.JSON(200, gin.H{"accepted": true})
}

func (h *TelemetryHandler) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

func parsePriority(s string) (constraints.Priority, error) {
	if s == "" {
		return constraints.PriorityMedium, nil
	}
	p, ok := constraints.ParsePriority(s)
	if !ok {
		return 0, errUnknownPriority
	}
	return p, nil
}

func buildPatch(r req.UpdateConfigRequest) (client.Patch, error) {
	p := client.Patch{
		Endpoint:             r.Endpoint,
		AuthToken:            r.AuthToken,
		MaxRetries:           r.MaxRetries,
		BatchSize:            r.BatchSize,
		TargetRate:           r.TargetRate,
		RateCeiling:          r.RateCeiling,
		CompressionEnabled:   r.CompressionEnabled,
		CompressionThreshold: r.CompressionThreshold,
		EncryptionEnabled:    r.EncryptionEnabled,
		PersistenceEnabled:   r.PersistenceEnabled,
	}

	var err error
	if p.BaseRetryDelay, err = parseDuration(r.BaseRetryDelay); err != nil {
		return p, err
	}
	if p.RequestTimeout, err = parseDuration(r.RequestTimeout); err != nil {
		return p, err
	}
	if p.TickInterval, err = parseDuration(r.TickInterval); err != nil {
		return p, err
	}

	if r.EncryptionKey != nil {
		key, err := hex.DecodeString(*r.EncryptionKey)
		if err != nil {
			return p, errBadEncryptionKey
		}
		p.EncryptionKey = key
	}
	return p, nil
}

func parseDuration(s *string) (*time.Duration, error) {
	if s == nil {
		return nil, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
