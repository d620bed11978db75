package store

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"pulsewire/internal/queue"
	"pulsewire/pkg/logger"
)

// Redis stores the snapshot as a single msgpack blob under one key, so a
// save is a single SET and therefore atomic.
type Redis struct {
	rdb      *redis.Client
	key      string
	maxItems int
}

func NewRedis(rdb *redis.Client, key string, maxItems int) *Redis {
	return &Redis{rdb: rdb, key: key, maxItems: maxItems}
}

func (s *Redis) Save(ctx context.Context, items []queue.Item) error {
	items = truncate(items, s.maxItems)
	b, err := msgpack.Marshal(items)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key, b, 0).Err()
}

func (s *Redis) Load(ctx context.Context) ([]queue.Item, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []queue.Item
	if err := msgpack.Unmarshal(b, &items); err != nil {
		// A corrupt snapshot must not take down startup.
		logger.Warn("discarding corrupt queue snapshot",
			zap.String("key", s.key),
			zap.Error(err))
		return nil, nil
	}
	return items, nil
}

func (s *Redis) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}
