package ratelimit

import (
	"time"

	"github.com/DragosMatei/KeyGate/internal/pkg/cache"
)

// RedisStore backs the limiter with the shared cache client. All counters
// use the cache layer's atomic INCR + EXPIRE NX primitive.
type RedisStore struct{}

func NewRedisStore() *RedisStore {
	return &RedisStore{}
}

func (s *RedisStore) Increment(key string, ttl time.Duration) (int64, error) {
	return cache.IncrementWithTTL(key, ttl)
}

func (s *RedisStore) SetFlag(key string, ttl time.Duration) error {
	return cache.Set(key, "1", ttl)
}

func (s *RedisStore) HasFlag(key string) (bool, error) {
	return cache.Exists(key)
}

func (s *RedisStore) TTL(key string) (time.Duration, error) {
	return cache.TTL(key)
}
