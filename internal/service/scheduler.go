// Package service drives the transmission pipeline. The Scheduler is the
// single writer: only it moves items out of the queue, through the
// transform chain and transmitter, and back in on retriable failure.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"pulsewire/internal/metrics"
	"pulsewire/internal/netmon"
	"pulsewire/internal/queue"
	"pulsewire/internal/ratelimit"
	"pulsewire/internal/store"
	"pulsewire/internal/transform"
	"pulsewire/internal/transport"
	v1 "pulsewire/pkg/api/v1"
	"pulsewire/pkg/constraints"
	"pulsewire/pkg/logger"
)

// Sender performs one network exchange. *transport.Transmitter is the
// production implementation.
type Sender interface {
	Send(ctx context.Context, body []byte, meta transport.SendMetadata) v1.TransmissionResult
}

// DeadLetterFunc receives items removed after exhausting their retries,
// alongside the terminal result.
type DeadLetterFunc func(item queue.Item, result v1.TransmissionResult)

type Options struct {
	MaxRetries         int
	BaseRetryDelay     time.Duration
	BatchSize          int
	TargetRate         int
	RateCeiling        int
	TickInterval       time.Duration
	DispatchWorkers    int
	BoostWindow        time.Duration
	PersistenceEnabled bool
}

type Deps struct {
	Queue      *queue.Queue
	Limiter    *ratelimit.Limiter
	Chain      *transform.Chain
	Sender     Sender
	Store      store.Store
	Monitor    netmon.Monitor
	Metrics    *metrics.Aggregator
	DeadLetter DeadLetterFunc
	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

type Scheduler struct {
	q       *queue.Queue
	limiter *ratelimit.Limiter
	sender  Sender
	st      store.Store
	monitor netmon.Monitor
	agg     *metrics.Aggregator
	now     func() time.Time

	mu         sync.Mutex // serializes ticks and guards the fields below
	opts       Options
	chain      *transform.Chain
	deadLetter DeadLetterFunc
	wasOffline bool
	boostUntil time.Time
}

func NewScheduler(deps Deps, opts Options) *Scheduler {
	if deps.Monitor == nil {
		deps.Monitor = netmon.NewManual()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if opts.DispatchWorkers < 1 {
		opts.DispatchWorkers = 1
	}
	return &Scheduler{
		q:          deps.Queue,
		limiter:    deps.Limiter,
		sender:     deps.Sender,
		st:         deps.Store,
		monitor:    deps.Monitor,
		agg:        deps.Metrics,
		now:        deps.Clock,
		opts:       opts,
		chain:      deps.Chain,
		deadLetter: deps.DeadLetter,
	}
}

// UpdateOptions replaces the scheduling options. Takes effect on the next
// tick; nothing caches options across a tick boundary.
func (s *Scheduler) UpdateOptions(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opts.DispatchWorkers < 1 {
		opts.DispatchWorkers = 1
	}
	s.opts = opts
}

// SetChain swaps the transform chain, used when the configuration's
// compression/encryption settings change.
func (s *Scheduler) SetChain(c *transform.Chain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chain = c
}

func (s *Scheduler) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.TickInterval <= 0 {
		return time.Second
	}
	return s.opts.TickInterval
}

// Run drives the periodic tick until ctx is cancelled. The caller owns the
// lifecycle; construction never starts anything by itself.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTimer(s.interval())
	defer t.Stop()
	logger.Info("scheduler started", zap.Duration("interval", s.interval()))

	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped")
			return
		case <-t.C:
			s.Tick(ctx)
			t.Reset(s.interval())
		}
	}
}

// Hydrate loads the persisted snapshot into the queue. Called once before
// the first tick.
func (s *Scheduler) Hydrate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opts.PersistenceEnabled {
		return
	}
	items, err := s.st.Load(ctx)
	if err != nil {
		logger.Warn("failed to load queue snapshot", zap.Error(err))
		return
	}
	if len(items) == 0 {
		return
	}
	s.q.Hydrate(items)
	logger.Info("queue hydrated from snapshot", zap.Int("items", len(items)))
}

// Tick runs one pass of the state machine: budget, dispatch, persist.
// Ticks are strictly sequenced; a slow batch delays the next tick rather
// than overlapping it.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opts := s.opts
	chain := s.chain

	state := s.monitor.State()
	if !state.Online {
		// Offline: accumulate, but keep the snapshot current so a crash
		// during the outage loses nothing.
		s.wasOffline = true
		s.persist(ctx, opts)
		s.agg.SetQueueDepth(s.q.Len())
		return
	}
	if s.wasOffline {
		s.wasOffline = false
		s.q.Escalate()
		s.boostUntil = s.now().Add(opts.BoostWindow)
		logger.Info("connection restored, escalating backlog",
			zap.Int("pending", s.q.Len()),
			zap.Duration("boost_window", opts.BoostWindow))
	}

	profile := netmon.AdaptProfile(state.Class, netmon.Profile{
		TargetRate: opts.TargetRate,
		BatchSize:  opts.BatchSize,
	})
	target := profile.TargetRate
	if s.now().Before(s.boostUntil) {
		target = min(target*2, opts.RateCeiling)
	}
	s.limiter.SetTarget(target)

	n := min(s.limiter.Remaining(), s.q.Len(), profile.BatchSize)
	if n <= 0 {
		s.persist(ctx, opts)
		s.agg.SetQueueDepth(s.q.Len())
		return
	}
	batch := s.q.SelectBatch(n, s.now())
	if len(batch) == 0 {
		s.persist(ctx, opts)
		return
	}
	s.limiter.Consume(len(batch))

	s.dispatch(ctx, batch, chain, opts)
	s.persist(ctx, opts)
	s.agg.SetQueueDepth(s.q.Len())
}

// dispatch fans the batch out to a bounded worker pool and waits for the
// whole batch before the caller persists, so the snapshot never reflects
// a half-dispatched batch.
func (s *Scheduler) dispatch(ctx context.Context, batch []*queue.Item, chain *transform.Chain, opts Options) {
	p := pool.New().WithMaxGoroutines(opts.DispatchWorkers)
	for _, it := range batch {
		it := it
		p.Go(func() {
			s.dispatchOne(ctx, it, chain, opts)
		})
	}
	p.Wait()
}

func (s *Scheduler) dispatchOne(ctx context.Context, it *queue.Item, chain *transform.Chain, opts Options) {
	res, wire, terminal := s.sendOnce(ctx, it, chain)
	s.agg.Record(res, wire)

	if res.Success {
		logger.Debug("item delivered",
			zap.String("item", it.ID),
			zap.Int("attempt", it.RetryCount),
			zap.Duration("latency", res.Duration))
		return
	}

	if !terminal && transport.Retriable(res) && it.RetryCount < opts.MaxRetries {
		it.RetryCount++
		it.NotBefore = s.now().Add(opts.BaseRetryDelay * time.Duration(it.RetryCount))
		it.Payload.Metadata.RetryAttempt = it.RetryCount
		s.agg.RecordRetry()
		s.q.Requeue(it)
		logger.Debug("item requeued",
			zap.String("item", it.ID),
			zap.Int("retry", it.RetryCount),
			zap.Time("not_before", it.NotBefore))
		return
	}

	logger.Warn("item permanently failed",
		zap.String("item", it.ID),
		zap.Int("attempts", it.RetryCount+1),
		zap.Int("status", res.StatusCode),
		zap.String("error", res.Error))
	s.agg.RecordTerminal()
	if s.deadLetter != nil {
		s.deadLetter(*it, res)
	}
}

// sendOnce serializes the payload, runs the transform chain and performs
// one transmission. terminal reports an unserializable payload, which no
// amount of retrying can fix.
func (s *Scheduler) sendOnce(ctx context.Context, it *queue.Item, chain *transform.Chain) (res v1.TransmissionResult, wire int, terminal bool) {
	payload := it.Payload
	payload.Metadata.RetryAttempt = it.RetryCount

	raw, err := json.Marshal(payload)
	if err != nil {
		return v1.TransmissionResult{
			Error:        "marshal payload: " + err.Error(),
			RetryAttempt: it.RetryCount,
		}, 0, true
	}

	tr := chain.Apply(raw)
	// Transform outcomes live on the queued payload so a requeue or dead
	// letter carries what actually went on the wire.
	it.Payload.Metadata.Compression = tr.Compression.Algorithm
	it.Payload.Metadata.Encryption = tr.Encryption.Algorithm
	if tr.Compression.Applied {
		s.agg.ObserveCompression(tr.Compression.OriginalSize, tr.Compression.TransformedSize)
	}

	meta := transport.SendMetadata{
		ItemID:       it.ID,
		SessionID:    it.Payload.SessionID,
		Priority:     it.Priority,
		RetryAttempt: it.RetryCount,
	}
	if tr.Compression.Applied {
		meta.ContentEncoding = tr.Compression.Algorithm
	}
	if tr.Encryption.Applied {
		meta.Encryption = tr.Encryption.Algorithm
	}

	return s.sender.Send(ctx, tr.Body, meta), len(tr.Body), false
}

// Flush synchronously drains every high and critical item, bypassing the
// rate limiter, blocking until each succeeds or exhausts its retries.
// This is the shutdown/urgent-delivery path.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	opts := s.opts
	chain := s.chain

	items := s.q.SelectUrgent(constraints.PriorityHigh)
	logger.Info("flushing urgent items", zap.Int("count", len(items)))

	for _, it := range items {
		for {
			res, wire, terminal := s.sendOnce(ctx, it, chain)
			s.agg.Record(res, wire)
			if res.Success {
				break
			}
			if terminal || !transport.Retriable(res) || it.RetryCount >= opts.MaxRetries {
				logger.Warn("flush: item permanently failed",
					zap.String("item", it.ID),
					zap.Int("attempts", it.RetryCount+1),
					zap.String("error", res.Error))
				s.agg.RecordTerminal()
				if s.deadLetter != nil {
					s.deadLetter(*it, res)
				}
				break
			}
			it.RetryCount++
			s.agg.RecordRetry()

			delay := opts.BaseRetryDelay * time.Duration(it.RetryCount)
			select {
			case <-ctx.Done():
				// Interrupted: return the item to the queue for the
				// regular loop and surface the cancellation.
				it.NotBefore = s.now().Add(delay)
				s.q.Requeue(it)
				s.persist(context.WithoutCancel(ctx), opts)
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	s.persist(ctx, opts)
	s.agg.SetQueueDepth(s.q.Len())
	return nil
}

// persist writes the current snapshot. A persistence failure is logged,
// never raised: the in-memory queue stays authoritative until the store
// recovers.
func (s *Scheduler) persist(ctx context.Context, opts Options) {
	if !opts.PersistenceEnabled {
		return
	}
	if err := s.st.Save(ctx, s.q.Snapshot()); err != nil {
		logger.Error("failed to persist queue snapshot", zap.Error(err))
	}
}
