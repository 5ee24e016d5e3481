// Package cache provides the Redis-backed canonical experiment ID cache.
//
// The cache maps canonical ID strings (lowercased, separators stripped) to
// experiment primary keys. It is strictly an accelerator: every consumer
// falls back to the database on a miss, and writes are best-effort, so a
// dead Redis degrades lookups to plain queries instead of failing them.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mhensley/labtrack/internal/pkg/config"
)

const canonicalKeyPrefix = "experiment:canonical:"

// CanonicalIDCache is the Redis implementation of the canonical-ID lookup
// cache used by the experiment repository.
type CanonicalIDCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCanonicalIDCache connects to Redis and verifies the connection.
func NewCanonicalIDCache(cfg *config.CacheConfig, logger *slog.Logger) (*CanonicalIDCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  time.Duration(cfg.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	ttl := time.Duration(cfg.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	logger.Info("redis connection established",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.Int("db", cfg.DB),
		slog.Duration("ttl", ttl),
	)

	return &CanonicalIDCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Close closes the Redis connection.
func (c *CanonicalIDCache) Close() error {
	c.logger.Info("closing redis connection")
	return c.client.Close()
}

// GetID looks up the primary key cached for a canonical experiment ID.
func (c *CanonicalIDCache) GetID(ctx context.Context, canonical string) (uint, bool) {
	text, err := c.client.Get(ctx, canonicalKeyPrefix+canonical).Result()
	if err == redis.Nil {
		return 0, false
	}
	if err != nil {
		c.logger.Warn("cache read failed",
			slog.String("canonical_id", canonical),
			slog.Any("error", err))
		return 0, false
	}

	id, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		// Corrupt entry: drop it rather than serve garbage
		c.client.Del(ctx, canonicalKeyPrefix+canonical)
		return 0, false
	}
	return uint(id), true
}

// SetID caches the primary key for a canonical experiment ID. Best-effort.
func (c *CanonicalIDCache) SetID(ctx context.Context, canonical string, id uint) {
	err := c.client.Set(ctx, canonicalKeyPrefix+canonical,
		strconv.FormatUint(uint64(id), 10), c.ttl).Err()
	if err != nil {
		c.logger.Warn("cache write failed",
			slog.String("canonical_id", canonical),
			slog.Any("error", err))
	}
}

// Invalidate drops cache entries for the given canonical IDs. The bulk
// upload state machine calls this at phase boundaries so conditions and
// additives lookups never see pre-rename identities.
func (c *CanonicalIDCache) Invalidate(ctx context.Context, canonical ...string) {
	if len(canonical) == 0 {
		return
	}

	keys := make([]string, len(canonical))
	for i, id := range canonical {
		keys[i] = canonicalKeyPrefix + id
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache invalidation failed",
			slog.Int("keys", len(keys)),
			slog.Any("error", err))
	}
}

// Ping checks if Redis is alive.
func (c *CanonicalIDCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Health returns connection pool statistics for health endpoints.
func (c *CanonicalIDCache) Health(ctx context.Context) map[string]interface{} {
	stats := c.client.PoolStats()

	return map[string]interface{}{
		"status":      "up",
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
	}
}
