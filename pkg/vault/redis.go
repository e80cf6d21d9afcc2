package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "keydesk:vault:"

// RedisVault stores values in Redis so multiple processes or hosts can share
// one session. Values never expire; logout deletes them explicitly.
type RedisVault struct {
	rdb *redis.Client
}

// NewRedisVault connects to the Redis instance described by url
// (redis://host:port/db) and verifies the connection.
func NewRedisVault(ctx context.Context, url string) (*RedisVault, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("vault: parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("vault: ping redis: %w", err)
	}
	return &RedisVault{rdb: rdb}, nil
}

// Get reads the value stored under key.
func (v *RedisVault) Get(ctx context.Context, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("vault: key is required")
	}

	value, err := v.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("vault: read %s: %w", key, err)
	}
	return value, nil
}

// Set writes value under key.
func (v *RedisVault) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("vault: key is required")
	}

	if err := v.rdb.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("vault: write %s: %w", key, err)
	}
	return nil
}

// Delete removes the value stored under key. Deleting an absent key is not an
// error.
func (v *RedisVault) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("vault: key is required")
	}

	if err := v.rdb.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("vault: delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (v *RedisVault) Close() error {
	if v == nil || v.rdb == nil {
		return nil
	}
	return v.rdb.Close()
}
