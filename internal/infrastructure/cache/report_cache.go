package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/commledger/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultSummaryTTL = 10 * time.Minute

// ReportCache caches per-period report summaries in Redis. Allocation
// writes invalidate the touched periods, so a summary is never older than
// the last reconciliation change.
type ReportCache struct {
	client     *redis.Client
	ownsClient bool
	ttl        time.Duration
	logger     *zap.Logger
}

// ReportCacheOption is a functional option for configuring the cache
type ReportCacheOption func(*ReportCache)

// WithSummaryTTL sets the cache entry lifetime
func WithSummaryTTL(ttl time.Duration) ReportCacheOption {
	return func(c *ReportCache) {
		c.ttl = ttl
	}
}

// WithCacheLogger sets the logger for the cache
func WithCacheLogger(logger *zap.Logger) ReportCacheOption {
	return func(c *ReportCache) {
		c.logger = logger
	}
}

// NewReportCache creates a Redis-backed report summary cache
func NewReportCache(cfg *config.RedisConfig, opts ...ReportCacheOption) (*ReportCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cache := &ReportCache{
		client:     client,
		ownsClient: true,
		ttl:        defaultSummaryTTL,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache, nil
}

// NewReportCacheWithClient creates a cache with an existing Redis client.
// The caller retains ownership of the client and is responsible for closing it.
func NewReportCacheWithClient(client *redis.Client, opts ...ReportCacheOption) *ReportCache {
	cache := &ReportCache{
		client:     client,
		ownsClient: false,
		ttl:        defaultSummaryTTL,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

func summaryKey(report string, period valueobject.Period) string {
	return fmt.Sprintf("report_summary:%s:%s", report, period.String())
}

// GetSummary retrieves a cached summary into dest. Returns false on a miss
// or an unmarshalable entry; a cache problem never fails the report.
func (c *ReportCache) GetSummary(ctx context.Context, report string, period valueobject.Period, dest interface{}) bool {
	data, err := c.client.Get(ctx, summaryKey(report, period)).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Warn("Failed to read report summary from cache",
			zap.String("report", report),
			zap.String("period", period.String()),
			zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("Failed to decode cached report summary",
			zap.String("report", report),
			zap.Error(err))
		return false
	}
	return true
}

// SetSummary stores a summary for the period
func (c *ReportCache) SetSummary(ctx context.Context, report string, period valueobject.Period, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to encode report summary for cache",
			zap.String("report", report),
			zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, summaryKey(report, period), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to store report summary in cache",
			zap.String("report", report),
			zap.String("period", period.String()),
			zap.Error(err))
	}
}

// InvalidatePeriods drops every cached summary of the given periods
func (c *ReportCache) InvalidatePeriods(ctx context.Context, periods []valueobject.Period) {
	for _, period := range periods {
		pattern := fmt.Sprintf("report_summary:*:%s", period.String())
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				c.logger.Warn("Failed to invalidate report summary",
					zap.String("key", iter.Val()),
					zap.Error(err))
			}
		}
		if err := iter.Err(); err != nil {
			c.logger.Warn("Failed to scan report summary keys",
				zap.String("period", period.String()),
				zap.Error(err))
		}
	}
}

// Close closes the Redis client when this cache owns it
func (c *ReportCache) Close() error {
	if !c.ownsClient {
		return nil
	}
	return c.client.Close()
}
