package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MissCache remembers geocoding queries that produced no result.
type MissCache interface {
	IsMiss(ctx context.Context, key string) (bool, error)
	RecordMiss(ctx context.Context, key string) error
}

// NopMissCache never remembers anything.
type NopMissCache struct{}

func (NopMissCache) IsMiss(context.Context, string) (bool, error) { return false, nil }
func (NopMissCache) RecordMiss(context.Context, string) error     { return nil }

const (
	missKeyPrefix     = "dispatch:geocode:miss:"
	connectionTimeout = 5 * time.Second
)

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// RedisMissCache stores misses as expiring Redis keys.
type RedisMissCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMissCache wraps client. Misses expire after ttl.
func NewRedisMissCache(client *redis.Client, ttl time.Duration) *RedisMissCache {
	return &RedisMissCache{client: client, ttl: ttl}
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, ErrEmptyAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (c *RedisMissCache) IsMiss(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, missKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (c *RedisMissCache) RecordMiss(ctx context.Context, key string) error {
	if err := c.client.Set(ctx, missKeyPrefix+key, 1, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
