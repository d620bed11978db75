package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"pulsewire/internal/queue"
	v1 "pulsewire/pkg/api/v1"
	"pulsewire/pkg/constraints"
)

func testRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedis(rdb, "pulsewire:queue", 100), mr
}

func makeItems(n int) []queue.Item {
	base := time.Unix(1700000000, 0).UTC()
	items := make([]queue.Item, n)
	for i := range items {
		items[i] = queue.Item{
			ID: "item-" + strconv.Itoa(i),
			Payload: v1.Payload{
				Content:   map[string]any{"seq": i},
				SessionID: "sess-1",
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			},
			EnqueuedAt: base.Add(time.Duration(i) * time.Second),
			Priority:   constraints.PriorityMedium,
			RetryCount: i % 3,
		}
	}
	return items
}

func TestRedisSaveLoadRoundTrip(t *testing.T) {
	s, _ := testRedis(t)
	ctx := context.Background()

	in := makeItems(5)
	if err := s.Save(ctx, in); err != nil {
		t.Fatal(err)
	}

	out, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 5 {
		t.Fatalf("loaded %d items, want 5", len(out))
	}
	for i := range in {
		if out[i].ID != in[i].ID {
			t.Fatalf("item %d: id %q, want %q (ordering must be preserved)", i, out[i].ID, in[i].ID)
		}
		if out[i].RetryCount != in[i].RetryCount {
			t.Fatalf("item %d: retry count %d, want %d", i, out[i].RetryCount, in[i].RetryCount)
		}
		if !out[i].EnqueuedAt.Equal(in[i].EnqueuedAt) {
			t.Fatalf("item %d: enqueued at %v, want %v", i, out[i].EnqueuedAt, in[i].EnqueuedAt)
		}
	}
}

func TestRedisSaveTruncatesKeepingMostRecent(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := NewRedis(rdb, "q", 3)
	ctx := context.Background()

	if err := s.Save(ctx, makeItems(10)); err != nil {
		t.Fatal(err)
	}
	out, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("loaded %d items, want 3", len(out))
	}
	// Most recent = tail of the snapshot.
	want := []string{"item-7", "item-8", "item-9"}
	for i, id := range want {
		if out[i].ID != id {
			t.Fatalf("item %d: id %q, want %q", i, out[i].ID, id)
		}
	}
}

func TestRedisLoadMissingSnapshotIsEmpty(t *testing.T) {
	s, _ := testRedis(t)
	out, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty load, got %d items", len(out))
	}
}

func TestRedisLoadCorruptSnapshotIsEmpty(t *testing.T) {
	s, mr := testRedis(t)
	mr.Set("pulsewire:queue", "definitely not msgpack")

	out, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("corrupt snapshot must not error, got %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("corrupt snapshot must load as empty, got %d items", len(out))
	}
}

func TestRedisClear(t *testing.T) {
	s, _ := testRedis(t)
	ctx := context.Background()

	if err := s.Save(ctx, makeItems(2)); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	out, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty after clear, got %d", len(out))
	}
}

func TestMemoryStoreSemantics(t *testing.T) {
	s := NewMemory(3)
	ctx := context.Background()

	if err := s.Save(ctx, makeItems(5)); err != nil {
		t.Fatal(err)
	}
	out, _ := s.Load(ctx)
	if len(out) != 3 || out[0].ID != "item-2" {
		t.Fatalf("memory truncation wrong: %d items, first %q", len(out), out[0].ID)
	}

	// Load returns a copy, not the backing slice.
	out[0].ID = "mutated"
	again, _ := s.Load(ctx)
	if again[0].ID != "item-2" {
		t.Fatal("load must return an isolated copy")
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if out, _ := s.Load(ctx); len(out) != 0 {
		t.Fatal("clear failed")
	}
}
