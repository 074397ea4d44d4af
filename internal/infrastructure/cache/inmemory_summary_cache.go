package cache

import (
	"context"
	"sync"
	"time"
)

// InMemorySummaryCache implements SummaryCache with a process-local value.
// Suitable for single-instance deployments and testing; state is not
// shared across processes.
type InMemorySummaryCache struct {
	mu        sync.RWMutex
	latest    *LatestSummary
	expiresAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewInMemorySummaryCache creates an in-memory summary cache
func NewInMemorySummaryCache(ttl time.Duration) *InMemorySummaryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &InMemorySummaryCache{ttl: ttl, now: time.Now}
}

// SetLatest stores the summary with the configured TTL
func (c *InMemorySummaryCache) SetLatest(_ context.Context, latest *LatestSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = latest
	c.expiresAt = c.now().Add(c.ttl)
	return nil
}

// GetLatest returns the cached summary, or nil after a miss or expiry
func (c *InMemorySummaryCache) GetLatest(_ context.Context) (*LatestSummary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil || c.now().After(c.expiresAt) {
		return nil, nil
	}
	return c.latest, nil
}

// Invalidate drops the cached summary
func (c *InMemorySummaryCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = nil
	return nil
}

// Close is a no-op for the in-memory cache
func (c *InMemorySummaryCache) Close() error {
	return nil
}
