package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stellarpay/starbridge/pkg/domain"
)

// RedisCache stores aggregated rates in Redis so multiple instances share
// one rate view. TTL enforcement is delegated to Redis key expiry.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a Redis-backed rate cache from a connection URL.
func NewRedisCache(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisCache{
		client: redis.NewClient(opts),
		prefix: "rates:",
	}, nil
}

// Get returns the cached rate, or (nil, nil) on a miss.
func (c *RedisCache) Get(key string) (*domain.AggregatedRate, error) {
	data, err := c.client.Get(context.Background(), c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var rate domain.AggregatedRate
	if err := json.Unmarshal(data, &rate); err != nil {
		return nil, err
	}
	return &rate, nil
}

// Set stores a rate under the key with TTL-driven expiry.
func (c *RedisCache) Set(key string, rate *domain.AggregatedRate, ttl time.Duration) error {
	data, err := json.Marshal(rate)
	if err != nil {
		return err
	}
	return c.client.Set(context.Background(), c.prefix+key, data, ttl).Err()
}

// Delete removes a key.
func (c *RedisCache) Delete(key string) error {
	return c.client.Del(context.Background(), c.prefix+key).Err()
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
