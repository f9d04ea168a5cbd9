package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore guarda valores como JSON en Redis con TTL opcional (0 = sin expiracion).
type RedisStore[T any] struct {
	client redisKV
	prefix string
	ttl    time.Duration
}

func NewRedisStore[T any](client redisKV, prefix string, ttl time.Duration) *RedisStore[T] {
	if strings.TrimSpace(prefix) == "" {
		prefix = "persona:"
	}
	return &RedisStore[T]{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore[T]) Put(ctx context.Context, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore[T]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
