// Package store persists the queue snapshot so items survive restarts and
// offline periods. The snapshot is the only durable representation of a
// queued item.
package store

import (
	"context"

	"pulsewire/internal/queue"
)

// Store is the durable save/load/clear contract for queue snapshots.
// Load must treat a corrupt or missing snapshot as empty, never as a
// startup failure.
type Store interface {
	Save(ctx context.Context, items []queue.Item) error
	Load(ctx context.Context) ([]queue.Item, error)
	Clear(ctx context.Context) error
}

// truncate keeps at most max items, preferring the most recently enqueued
// (the tail of the snapshot, which is in queue order).
func truncate(items []queue.Item, max int) []queue.Item {
	if max <= 0 || len(items) <= max {
		return items
	}
	return items[len(items)-max:]
}
