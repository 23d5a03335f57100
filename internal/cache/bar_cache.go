package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/signalforge-go/internal/metrics"
	"github.com/irfndi/signalforge-go/internal/models"
)

const barKeyPrefix = "bars:"

// BarCacheEntry is the value stored per symbol, timeframe and period.
type BarCacheEntry struct {
	Bars     []models.Bar `json:"bars"`
	Provider string       `json:"provider"`
	CachedAt time.Time    `json:"cached_at"`
}

// BarCacheStats tracks cache performance
type BarCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

// BarCache keeps fetched bars in Redis. Intraday series expire sooner.
type BarCache struct {
	redis       *redis.Client
	ttl         time.Duration
	intradayTTL time.Duration
	metrics     *metrics.Registry
	logger      *logrus.Logger

	mu    sync.Mutex
	stats BarCacheStats
}

// NewBarCache creates the cache. reg may be nil.
func NewBarCache(client *redis.Client, ttl, intradayTTL time.Duration, reg *metrics.Registry, logger *logrus.Logger) *BarCache {
	if logger == nil {
		logger = logrus.New()
	}
	if intradayTTL <= 0 || intradayTTL > ttl {
		intradayTTL = ttl
	}
	return &BarCache{
		redis:       client,
		ttl:         ttl,
		intradayTTL: intradayTTL,
		metrics:     reg,
		logger:      logger,
	}
}

// Key builds the Redis key for a request.
func Key(symbol string, timeframe models.Timeframe, period models.Period) string {
	return fmt.Sprintf("%s%s:%s:%s", barKeyPrefix, normalize(symbol), timeframe, period)
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// TTL returns how long bars of timeframe stay cached.
func (c *BarCache) TTL(timeframe models.Timeframe) time.Duration {
	if timeframe.Intraday() {
		return c.intradayTTL
	}
	return c.ttl
}

// Get returns cached bars. Redis and decode failures are logged and
// reported as a miss.
func (c *BarCache) Get(ctx context.Context, symbol string, timeframe models.Timeframe, period models.Period) (*BarCacheEntry, bool) {
	key := Key(symbol, timeframe, period)
	start := time.Now()

	data, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record(false, nil, key, start)
		return nil, false
	}
	if err != nil {
		c.record(false, err, key, start)
		return nil, false
	}

	var entry BarCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.record(false, fmt.Errorf("decode cached bars: %w", err), key, start)
		return nil, false
	}

	c.record(true, nil, key, start)
	return &entry, true
}

// Set stores bars with the TTL for their timeframe.
func (c *BarCache) Set(ctx context.Context, symbol string, timeframe models.Timeframe, period models.Period, provider string, bars []models.Bar) error {
	key := Key(symbol, timeframe, period)
	data, err := json.Marshal(BarCacheEntry{Bars: bars, Provider: provider, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode bars for %s: %w", key, err)
	}

	if err := c.redis.Set(ctx, key, data, c.TTL(timeframe)).Err(); err != nil {
		c.mu.Lock()
		c.stats.Errors++
		c.mu.Unlock()
		c.metrics.ObserveCache(false, err)
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	c.mu.Lock()
	c.stats.Sets++
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"key":  key,
		"bars": len(bars),
		"ttl":  c.TTL(timeframe).String(),
	}).Debug("Cached bars")
	return nil
}

// Invalidate removes every cached series for symbol and returns how many
// keys were deleted.
func (c *BarCache) Invalidate(ctx context.Context, symbol string) (int64, error) {
	pattern := barKeyPrefix + normalize(symbol) + ":*"

	var keys []string
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("error scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := c.redis.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("error clearing cache: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"symbol":  normalize(symbol),
		"deleted": n,
	}).Info("Invalidated cached bars")
	return n, nil
}

// GetStats returns current cache statistics
func (c *BarCache) GetStats() BarCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// HitRate is hits over lookups, zero before the first lookup.
func (s BarCacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (c *BarCache) record(hit bool, err error, key string, start time.Time) {
	c.mu.Lock()
	switch {
	case err != nil:
		c.stats.Errors++
		c.stats.Misses++
	case hit:
		c.stats.Hits++
	default:
		c.stats.Misses++
	}
	c.mu.Unlock()

	c.metrics.ObserveCache(hit, err)

	entry := c.logger.WithFields(logrus.Fields{
		"operation":   "get",
		"key":         key,
		"hit":         hit,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("Bar cache lookup failed")
		return
	}
	entry.Debug("Cache operation")
}
