package ratelimit

import (
	"context"
	"time"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/cache"
)

// RedisStore keeps window counters in Redis so every instance shares them.
type RedisStore struct {
	cache *cache.Cache
}

// NewRedisStore creates a RedisStore on top of c.
func NewRedisStore(c *cache.Cache) *RedisStore {
	return &RedisStore{cache: c}
}

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	slot, err := s.cache.TakeSlot(ctx, key, limit, window)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Allowed: slot.Allowed,
		Count:   slot.Count,
		Limit:   limit,
		ResetIn: slot.TTL,
	}, nil
}
