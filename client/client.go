// Package client is the embeddable telemetry transmitter. Callers hand it
// opaque payloads; it queues, rate-limits, transforms and delivers them to
// the ingestion endpoint, surviving offline periods through a persisted
// queue snapshot.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pulsewire/internal/metrics"
	"pulsewire/internal/netmon"
	"pulsewire/internal/queue"
	"pulsewire/internal/ratelimit"
	"pulsewire/internal/service"
	"pulsewire/internal/store"
	"pulsewire/internal/transform"
	"pulsewire/internal/transport"
	v1 "pulsewire/pkg/api/v1"
	"pulsewire/pkg/constraints"
	"pulsewire/pkg/logger"
)

var (
	ErrDestroyed       = errors.New("pulsewire: client destroyed")
	ErrMissingEndpoint = errors.New("pulsewire: endpoint is required")
)

// Config is the full pipeline configuration. Zero values fall back to the
// defaults below. Runtime changes go through UpdateConfig and take effect
// on the next scheduler tick.
type Config struct {
	// Endpoint is the ingestion URL. Required.
	Endpoint  string
	AuthToken string

	MaxRetries     int
	BaseRetryDelay time.Duration
	BatchSize      int
	TargetRate     int // items per second
	RateCeiling    int // absolute cap during the post-reconnect boost
	RequestTimeout time.Duration
	TickInterval   time.Duration

	DispatchWorkers int
	BoostWindow     time.Duration

	CompressionEnabled   bool
	CompressionThreshold int // bytes
	EncryptionEnabled    bool
	EncryptionKey        []byte // 32 bytes for AES-256

	PersistenceEnabled bool
	StoreKey           string
	MaxStoredItems     int

	Platform      string
	SchemaVersion string
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseRetryDelay == 0 {
		c.BaseRetryDelay = time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = 10
	}
	if c.TargetRate == 0 {
		c.TargetRate = 20
	}
	if c.RateCeiling == 0 {
		c.RateCeiling = 100
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.TickInterval == 0 {
		c.TickInterval = time.Second
	}
	if c.DispatchWorkers == 0 {
		c.DispatchWorkers = 4
	}
	if c.BoostWindow == 0 {
		c.BoostWindow = 30 * time.Second
	}
	if c.CompressionThreshold == 0 {
		c.CompressionThreshold = 1024
	}
	if c.StoreKey == "" {
		c.StoreKey = "pulsewire:queue"
	}
	if c.MaxStoredItems == 0 {
		c.MaxStoredItems = 500
	}
	if c.Platform == "" {
		c.Platform = "go"
	}
	if c.SchemaVersion == "" {
		c.SchemaVersion = "1.0"
	}
	return c
}

// DeadLetter describes an item removed after exhausting its retries.
type DeadLetter struct {
	ItemID     string
	Payload    v1.Payload
	Priority   constraints.Priority
	RetryCount int
	Result     v1.TransmissionResult
}

type Option func(*Client)

// WithRedis backs the offline queue snapshot with redis.
func WithRedis(rdb *redis.Client) Option {
	return func(c *Client) { c.rdb = rdb }
}

// WithStore overrides the snapshot store entirely.
func WithStore(s store.Store) Option {
	return func(c *Client) { c.st = s }
}

// WithMonitor plugs in the host's network-state signal. Without one the
// pipeline assumes online with a good link.
func WithMonitor(m netmon.Monitor) Option {
	return func(c *Client) { c.monitor = m }
}

// WithObserver mirrors pipeline metrics to an external system, e.g.
// metrics.NewPrometheusObserver().
func WithObserver(obs metrics.PipelineObserver) Option {
	return func(c *Client) { c.observer = obs }
}

// WithDeadLetter registers a hook for permanently failed items.
func WithDeadLetter(fn func(DeadLetter)) Option {
	return func(c *Client) { c.deadLetter = fn }
}

type Client struct {
	mu  sync.Mutex
	cfg Config

	q       *queue.Queue
	limiter *ratelimit.Limiter
	sender  *transport.Transmitter
	agg     *metrics.Aggregator
	sched   *service.Scheduler
	st      store.Store

	rdb        *redis.Client
	monitor    netmon.Monitor
	observer   metrics.PipelineObserver
	deadLetter func(DeadLetter)

	cancel    context.CancelFunc
	started   bool
	destroyed bool
}

func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}

	c := &Client{cfg: cfg, monitor: netmon.NewManual()}
	for _, opt := range opts {
		opt(c)
	}

	if c.st == nil {
		if c.rdb != nil {
			c.st = store.NewRedis(c.rdb, cfg.StoreKey, cfg.MaxStoredItems)
		} else {
			if cfg.PersistenceEnabled {
				logger.Warn("persistence enabled without a redis client, using in-memory store")
			}
			c.st = store.NewMemory(cfg.MaxStoredItems)
		}
	}

	c.q = queue.New()
	c.limiter = ratelimit.New(cfg.TargetRate)
	c.sender = transport.New(transport.Options{
		Endpoint:  cfg.Endpoint,
		Timeout:   cfg.RequestTimeout,
		AuthToken: cfg.AuthToken,
	})
	c.agg = metrics.NewAggregator(c.observer)

	var dlf service.DeadLetterFunc
	if c.deadLetter != nil {
		hook := c.deadLetter
		dlf = func(item queue.Item, res v1.TransmissionResult) {
			hook(DeadLetter{
				ItemID:     item.ID,
				Payload:    item.Payload,
				Priority:   item.Priority,
				RetryCount: item.RetryCount,
				Result:     res,
			})
		}
	}

	c.sched = service.NewScheduler(service.Deps{
		Queue:      c.q,
		Limiter:    c.limiter,
		Chain:      transform.NewChain(chainOptions(cfg)),
		Sender:     c.sender,
		Store:      c.st,
		Monitor:    c.monitor,
		Metrics:    c.agg,
		DeadLetter: dlf,
	}, schedulerOptions(cfg))

	return c, nil
}

func chainOptions(cfg Config) transform.Options {
	return transform.Options{
		CompressionEnabled:   cfg.CompressionEnabled,
		CompressionThreshold: cfg.CompressionThreshold,
		EncryptionEnabled:    cfg.EncryptionEnabled,
		Key:                  cfg.EncryptionKey,
	}
}

func schedulerOptions(cfg Config) service.Options {
	return service.Options{
		MaxRetries:         cfg.MaxRetries,
		BaseRetryDelay:     cfg.BaseRetryDelay,
		BatchSize:          cfg.BatchSize,
		TargetRate:         cfg.TargetRate,
		RateCeiling:        cfg.RateCeiling,
		TickInterval:       cfg.TickInterval,
		DispatchWorkers:    cfg.DispatchWorkers,
		BoostWindow:        cfg.BoostWindow,
		PersistenceEnabled: cfg.PersistenceEnabled,
	}
}

// Start hydrates the queue from the persisted snapshot and launches the
// scheduler loop. The loop stops when Destroy is called.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	if c.started {
		return nil
	}

	c.sched.Hydrate(ctx)

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.sched.Run(runCtx)
	c.started = true
	return nil
}

// Transmit queues one payload and returns its item id immediately.
// Enqueue never fails once the client accepts it; delivery failures
// surface only through Metrics and QueueStatus.
func (c *Client) Transmit(sessionID string, content any, priority constraints.Priority) (string, error) {
	return c.enqueue(sessionID, content, priority, 1)
}

// TransmitBatch chunks payloads into nominal-batch-sized groups and queues
// each, returning the item ids in input order.
func (c *Client) TransmitBatch(sessionID string, contents []any, priority constraints.Priority) ([]string, error) {
	c.mu.Lock()
	chunkSize := c.cfg.BatchSize
	c.mu.Unlock()

	ids := make([]string, 0, len(contents))
	for start := 0; start < len(contents); start += chunkSize {
		end := min(start+chunkSize, len(contents))
		chunk := contents[start:end]
		for _, content := range chunk {
			id, err := c.enqueue(sessionID, content, priority, len(chunk))
			if err != nil {
				return ids, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Client) enqueue(sessionID string, content any, priority constraints.Priority, batchSize int) (string, error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return "", ErrDestroyed
	}
	cfg := c.cfg
	c.mu.Unlock()

	now := time.Now()
	item := &queue.Item{
		ID: uuid.NewString(),
		Payload: v1.Payload{
			Content:   content,
			SessionID: sessionID,
			CreatedAt: now,
			Metadata: v1.Metadata{
				Platform:      cfg.Platform,
				SchemaVersion: cfg.SchemaVersion,
				BatchSize:     batchSize,
			},
		},
		EnqueuedAt: now,
		Priority:   priority,
	}
	c.q.Enqueue(item)
	logger.Debug("payload queued",
		zap.String("item", item.ID),
		zap.String("session", sessionID),
		zap.String("priority", priority.String()))
	return item.ID, nil
}

// Flush synchronously delivers all high and critical items, bypassing the
// rate limiter. Intended for shutdown and urgent-delivery paths.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	c.mu.Unlock()
	return c.sched.Flush(ctx)
}

// Metrics returns a snapshot of the pipeline counters.
func (c *Client) Metrics() v1.Metrics {
	m := c.agg.Snapshot()
	m.QueueDepth = c.q.Len()
	return m
}

// QueueStatus summarizes the pending backlog.
func (c *Client) QueueStatus() v1.QueueStatus {
	return c.q.Status()
}

// ClearQueue drops all pending items and the persisted snapshot.
func (c *Client) ClearQueue(ctx context.Context) error {
	c.q.Clear()
	return c.st.Clear(ctx)
}

// Patch is a partial configuration update; nil fields keep their current
// value. Changes take effect on the next tick.
type Patch struct {
	Endpoint             *string
	AuthToken            *string
	MaxRetries           *int
	BaseRetryDelay       *time.Duration
	BatchSize            *int
	TargetRate           *int
	RateCeiling          *int
	RequestTimeout       *time.Duration
	TickInterval         *time.Duration
	CompressionEnabled   *bool
	CompressionThreshold *int
	EncryptionEnabled    *bool
	EncryptionKey        []byte
	PersistenceEnabled   *bool
}

// UpdateConfig applies a partial configuration update atomically.
func (c *Client) UpdateConfig(p Patch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}

	cfg := c.cfg
	if p.Endpoint != nil {
		cfg.Endpoint = *p.Endpoint
	}
	if p.AuthToken != nil {
		cfg.AuthToken = *p.AuthToken
	}
	if p.MaxRetries != nil {
		cfg.MaxRetries = *p.MaxRetries
	}
	if p.BaseRetryDelay != nil {
		cfg.BaseRetryDelay = *p.BaseRetryDelay
	}
	if p.BatchSize != nil {
		cfg.BatchSize = *p.BatchSize
	}
	if p.TargetRate != nil {
		cfg.TargetRate = *p.TargetRate
	}
	if p.RateCeiling != nil {
		cfg.RateCeiling = *p.RateCeiling
	}
	if p.RequestTimeout != nil {
		cfg.RequestTimeout = *p.RequestTimeout
	}
	if p.TickInterval != nil {
		cfg.TickInterval = *p.TickInterval
	}
	if p.CompressionEnabled != nil {
		cfg.CompressionEnabled = *p.CompressionEnabled
	}
	if p.CompressionThreshold != nil {
		cfg.CompressionThreshold = *p.CompressionThreshold
	}
	if p.EncryptionEnabled != nil {
		cfg.EncryptionEnabled = *p.EncryptionEnabled
	}
	if p.EncryptionKey != nil {
		cfg.EncryptionKey = p.EncryptionKey
	}
	if p.PersistenceEnabled != nil {
		cfg.PersistenceEnabled = *p.PersistenceEnabled
	}
	if cfg.Endpoint == "" {
		return ErrMissingEndpoint
	}

	c.cfg = cfg
	c.sender.UpdateOptions(transport.Options{
		Endpoint:  cfg.Endpoint,
		Timeout:   cfg.RequestTimeout,
		AuthToken: cfg.AuthToken,
	})
	c.sched.SetChain(transform.NewChain(chainOptions(cfg)))
	c.sched.UpdateOptions(schedulerOptions(cfg))
	logger.Info("configuration updated")
	return nil
}

// Config returns a copy of the current configuration.
func (c *Client) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Destroy stops the scheduler, releases transmitter resources and rejects
// further use. In-flight items recover on next startup from the snapshot
// taken at the last completed tick. Idempotent.
func (c *Client) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.destroyed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.sender.Close()
	logger.Info("client destroyed")
}
