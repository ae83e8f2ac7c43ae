package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage is the session key/value backend. Every write refreshes the key
// TTL so idle sessions expire on their own.
type Storage struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStorage(rdb *redis.Client, ttl time.Duration) *Storage {
	return &Storage{rdb: rdb, ttl: ttl}
}

func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	const op = "redis.Storage.Get"

	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s:%w", op, err)
	}

	return v, true, nil
}

func (s *Storage) Set(ctx context.Context, key, value string) error {
	const op = "redis.Storage.Set"

	if err := s.rdb.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// SetMany writes kv in one MULTI/EXEC block.
func (s *Storage) SetMany(ctx context.Context, kv map[string]string) error {
	const op = "redis.Storage.SetMany"

	if len(kv) == 0 {
		return nil
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range kv {
			pipe.Set(ctx, k, v, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (s *Storage) Delete(ctx context.Context, keys ...string) error {
	const op = "redis.Storage.Delete"

	if len(keys) == 0 {
		return nil
	}

	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
