package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisKV keeps values as plain Redis strings without expiry.
type RedisKV struct {
	client   redis.Cmdable
	maxBytes int64
}

func NewRedisKV(client redis.Cmdable, maxBytes int64) *RedisKV {
	return &RedisKV{client: client, maxBytes: maxBytes}
}

func (s *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return payload, true, nil
}

func (s *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := checkQuota(value, s.maxBytes); err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisKV) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
