package queue

import (
	"sort"
	"sync"
	"time"

	v1 "pulsewire/pkg/api/v1"
	"pulsewire/pkg/constraints"
)

// Item wraps one payload while it waits in the transmission queue.
// NotBefore implements delayed retry: an item is not eligible for
// selection until that instant has passed.
type Item struct {
	ID         string               `json:"id" msgpack:"id"`
	Payload    v1.Payload           `json:"payload" msgpack:"payload"`
	EnqueuedAt time.Time            `json:"enqueued_at" msgpack:"enqueued_at"`
	RetryCount int                  `json:"retry_count" msgpack:"retry_count"`
	NotBefore  time.Time            `json:"not_before" msgpack:"not_before"`
	Priority   constraints.Priority `json:"priority" msgpack:"priority"`
}

// Queue is the ordered collection of pending items. All mutation goes
// through the scheduler; the internal lock only protects against readers
// (status, snapshot) racing that single writer.
type Queue struct {
	mu    sync.Mutex
	items []*Item
}

func New() *Queue {
	return &Queue{}
}

func (q *Queue) Enqueue(it *Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, it)
}

// Requeue reinserts an item after a retriable failure. The item keeps its
// original enqueue timestamp so FIFO ordering within a priority holds.
func (q *Queue) Requeue(it *Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, it)
}

// SelectBatch removes and returns up to limit eligible items, ordered by
// priority descending then enqueue time ascending. Removal is atomic with
// the read. An empty result is not an error.
func (q *Queue) SelectBatch(limit int, now time.Time) []*Item {
	if limit <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	eligible := make([]*Item, 0, len(q.items))
	for _, it := range q.items {
		if !it.NotBefore.After(now) {
			eligible = append(eligible, it)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].EnqueuedAt.Before(eligible[j].EnqueuedAt)
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	q.remove(eligible)
	return eligible
}

// SelectUrgent removes and returns every item at or above min priority,
// ignoring not-before timestamps. Used by the synchronous flush path.
func (q *Queue) SelectUrgent(min constraints.Priority) []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	urgent := make([]*Item, 0)
	for _, it := range q.items {
		if it.Priority >= min {
			urgent = append(urgent, it)
		}
	}
	sort.SliceStable(urgent, func(i, j int) bool {
		if urgent[i].Priority != urgent[j].Priority {
			return urgent[i].Priority > urgent[j].Priority
		}
		return urgent[i].EnqueuedAt.Before(urgent[j].EnqueuedAt)
	})
	q.remove(urgent)
	return urgent
}

// remove drops the given items from the backlog. Caller holds the lock.
func (q *Queue) remove(selected []*Item) {
	if len(selected) == 0 {
		return
	}
	drop := make(map[*Item]struct{}, len(selected))
	for _, it := range selected {
		drop[it] = struct{}{}
	}
	kept := q.items[:0]
	for _, it := range q.items {
		if _, ok := drop[it]; !ok {
			kept = append(kept, it)
		}
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Escalate promotes every pending item one priority step (low to medium,
// medium to high). Runs once per offline-to-online transition.
func (q *Queue) Escalate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		it.Priority = it.Priority.Escalated()
	}
}

// Snapshot copies the current backlog for persistence, in queue order.
func (q *Queue) Snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	snap := make([]Item, len(q.items))
	for i, it := range q.items {
		snap[i] = *it
	}
	return snap
}

// Hydrate merges a previously persisted snapshot into the backlog.
// Snapshot items predate anything already queued, so they go in front;
// items whose id is already live are skipped.
func (q *Queue) Hydrate(items []Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	live := make(map[string]bool, len(q.items))
	for _, it := range q.items {
		live[it.ID] = true
	}

	merged := make([]*Item, 0, len(items)+len(q.items))
	for i := range items {
		if live[items[i].ID] {
			continue
		}
		it := items[i]
		merged = append(merged, &it)
	}
	q.items = append(merged, q.items...)
}

func (q *Queue) Status() v1.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := v1.QueueStatus{
		Count:            len(q.items),
		CountsByPriority: make(map[string]int),
	}
	for _, it := range q.items {
		st.CountsByPriority[it.Priority.String()]++
		if st.OldestEnqueuedAt.IsZero() || it.EnqueuedAt.Before(st.OldestEnqueuedAt) {
			st.OldestEnqueuedAt = it.EnqueuedAt
		}
		if it.EnqueuedAt.After(st.NewestEnqueuedAt) {
			st.NewestEnqueuedAt = it.EnqueuedAt
		}
	}
	return st
}
