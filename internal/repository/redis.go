package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskcal/internal/config"

	"github.com/redis/go-redis/v9"
)

const livenessKeyPrefix = "calendar_liveness:"

type RedisLivenessCache struct {
	client *redis.Client
}

// NewRedisClient builds a client from the redis config section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisLivenessCache(client *redis.Client) *RedisLivenessCache {
	return &RedisLivenessCache{client: client}
}

func (r *RedisLivenessCache) IsLive(ctx context.Context, key string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	err := r.client.Get(ctx, livenessKeyPrefix+key).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get liveness from redis: %w", err)
	}
	return true, nil
}

func (r *RedisLivenessCache) MarkLive(ctx context.Context, key string, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, livenessKeyPrefix+key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to set liveness in redis: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the client; nil is a no-op.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
