package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const latestSummaryKey = "reconciliation:summary:latest"

// RedisSummaryCache implements SummaryCache using Redis. Suitable for
// deployments where multiple instances serve the dashboard.
type RedisSummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisCacheConfig holds Redis connection configuration
type RedisCacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisSummaryCache creates a Redis-backed summary cache and verifies
// the connection
func NewRedisSummaryCache(cfg RedisCacheConfig) (*RedisSummaryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisSummaryCacheWithClient(client, cfg.TTL), nil
}

// NewRedisSummaryCacheWithClient creates a cache with an existing Redis
// client. Useful for testing or when sharing a client across components.
func NewRedisSummaryCacheWithClient(client *redis.Client, ttl time.Duration) *RedisSummaryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisSummaryCache{client: client, ttl: ttl}
}

// SetLatest stores the summary with the configured TTL
func (c *RedisSummaryCache) SetLatest(ctx context.Context, latest *LatestSummary) error {
	data, err := json.Marshal(latest)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := c.client.Set(ctx, latestSummaryKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache summary: %w", err)
	}
	return nil
}

// GetLatest returns the cached summary or nil on a miss
func (c *RedisSummaryCache) GetLatest(ctx context.Context) (*LatestSummary, error) {
	data, err := c.client.Get(ctx, latestSummaryKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached summary: %w", err)
	}

	var latest LatestSummary
	if err := json.Unmarshal(data, &latest); err != nil {
		return nil, fmt.Errorf("corrupt cached summary: %w", err)
	}
	return &latest, nil
}

// Invalidate drops the cached summary
func (c *RedisSummaryCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, latestSummaryKey).Err()
}

// Close closes the Redis client
func (c *RedisSummaryCache) Close() error {
	return c.client.Close()
}
