package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a fixed-window counter gating how many items may dispatch per
// window. Target changes apply on the next window roll, never retroactively,
// so a mid-window reconfiguration cannot retro-grant or revoke budget.
type Limiter struct {
	mu          sync.Mutex
	window      time.Duration
	target      int
	nextTarget  int
	consumed    int
	windowStart time.Time
	now         func() time.Time
}

type Option func(*Limiter)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithWindow overrides the default one-second window.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

func New(target int, opts ...Option) *Limiter {
	l := &Limiter{
		window:     time.Second,
		target:     target,
		nextTarget: target,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.windowStart = l.now()
	return l
}

// Remaining reports how much budget the current window still has, rolling
// the window forward first if it has elapsed.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll()
	r := l.target - l.consumed
	if r < 0 {
		return 0
	}
	return r
}

// Consume records n dispatched items against the current window.
func (l *Limiter) Consume(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll()
	l.consumed += n
}

// SetTarget stages a new per-window target. It takes effect when the
// current window rolls.
func (l *Limiter) SetTarget(target int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextTarget = target
}

// Target returns the target in effect for the current window.
func (l *Limiter) Target() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll()
	return l.target
}

// roll resets the counter and applies any staged target once the window
// has elapsed. Caller holds the lock.
func (l *Limiter) roll() {
	now := l.now()
	if now.Sub(l.windowStart) < l.window {
		return
	}
	l.windowStart = now
	l.consumed = 0
	l.target = l.nextTarget
}
