package store

import (
	"context"
	"sync"

	"pulsewire/internal/queue"
)

// Memory keeps the snapshot in process memory. It backs pipelines with
// persistence disabled and the test suite; semantics match Redis,
// including truncation.
type Memory struct {
	mu       sync.Mutex
	items    []queue.Item
	maxItems int
}

func NewMemory(maxItems int) *Memory {
	return &Memory{maxItems: maxItems}
}

func (s *Memory) Save(_ context.Context, items []queue.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items = truncate(items, s.maxItems)
	s.items = make([]queue.Item, len(items))
	copy(s.items, items)
	return nil
}

func (s *Memory) Load(_ context.Context) ([]queue.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]queue.Item, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *Memory) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	return nil
}
