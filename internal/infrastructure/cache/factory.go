package cache

import (
	"fmt"

	"github.com/finrec/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// SummaryCacheFactory creates summary caches based on configuration
type SummaryCacheFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// SummaryCacheFactoryOption is a functional option for configuring the factory
type SummaryCacheFactoryOption func(*SummaryCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) SummaryCacheFactoryOption {
	return func(f *SummaryCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory cache
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) SummaryCacheFactoryOption {
	return func(f *SummaryCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewSummaryCacheFactory creates a new factory
func NewSummaryCacheFactory(cfg config.RedisConfig, opts ...SummaryCacheFactoryOption) *SummaryCacheFactory {
	f := &SummaryCacheFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Create builds the summary cache. When Redis is disabled or unreachable
// and fallback is allowed, a process-local cache is returned instead.
func (f *SummaryCacheFactory) Create() (SummaryCache, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory summary cache")
		return NewInMemorySummaryCache(f.redisConfig.TTL), nil
	}

	redisCache, err := NewRedisSummaryCache(RedisCacheConfig{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
		TTL:      f.redisConfig.TTL,
	})
	if err == nil {
		f.logger.Info("using Redis summary cache",
			zap.String("addr", f.redisConfig.Addr()))
		return redisCache, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("failed to create Redis summary cache: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory summary cache",
		zap.String("addr", f.redisConfig.Addr()),
		zap.Error(err))
	return NewInMemorySummaryCache(f.redisConfig.TTL), nil
}
