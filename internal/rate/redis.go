package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore implements CounterStore on Redis. INCR followed by
// EXPIRE-on-first-hit gives fixed-window semantics: the TTL is set once
// when the key is created and never extended inside the window.
type RedisCounterStore struct {
	client redis.UniversalClient
}

// NewRedisCounterStore wraps a Redis client as a CounterStore.
func NewRedisCounterStore(client redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (s *RedisCounterStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}

	if count == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
		}
	}

	return count, nil
}

func (s *RedisCounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return ttl, nil
}

func (s *RedisCounterStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return nil
}
