package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/banking/txn-monitoring-service/internal/config"
	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
	"github.com/banking/txn-monitoring-service/internal/scenario"
)

// NewRedisClient creates and verifies a redis client
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// ReferenceCache is a read-through cache in front of a reference provider.
// Thresholds, score buckets and country flags are cached per scenario; prior
// alerts always go to the source. A failing cache never fails a lookup.
type ReferenceCache struct {
	scenario.ReferenceProvider

	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

// NewReferenceCache wraps source with a redis cache
func NewReferenceCache(source scenario.ReferenceProvider, client *redis.Client, prefix string, ttl time.Duration, log *logger.Logger) *ReferenceCache {
	if prefix == "" {
		prefix = "txnmon"
	}
	return &ReferenceCache{
		ReferenceProvider: source,
		client:            client,
		prefix:            prefix,
		ttl:               ttl,
		log:               log.Named("reference_cache"),
	}
}

func (c *ReferenceCache) makeKey(kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, kind, id)
}

// get decodes a cached value into dst, reporting a hit
func (c *ReferenceCache) get(ctx context.Context, key string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache read failed", zap.String("key", key), logger.ErrorField(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.log.Warn("cache entry corrupt", zap.String("key", key), logger.ErrorField(err))
		return false
	}
	return true
}

func (c *ReferenceCache) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache encode failed", zap.String("key", key), logger.ErrorField(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), logger.ErrorField(err))
	}
}

// Thresholds implements scenario.ReferenceProvider
func (c *ReferenceCache) Thresholds(ctx context.Context, scenarioID string) (domain.ThresholdSet, error) {
	key := c.makeKey("thresholds", scenarioID)
	var t domain.ThresholdSet
	if c.get(ctx, key, &t) {
		return t, nil
	}

	t, err := c.ReferenceProvider.Thresholds(ctx, scenarioID)
	if err != nil {
		return t, err
	}
	c.set(ctx, key, t)
	return t, nil
}

// ScoreBuckets implements scenario.ReferenceProvider
func (c *ReferenceCache) ScoreBuckets(ctx context.Context, scenarioID string) (domain.ScoreBuckets, error) {
	key := c.makeKey("score_buckets", scenarioID)
	var b domain.ScoreBuckets
	if c.get(ctx, key, &b) {
		return b, nil
	}

	b, err := c.ReferenceProvider.ScoreBuckets(ctx, scenarioID)
	if err != nil {
		return b, err
	}
	c.set(ctx, key, b)
	return b, nil
}

// CountryFlags implements scenario.ReferenceProvider
func (c *ReferenceCache) CountryFlags(ctx context.Context) (map[string]bool, error) {
	key := c.makeKey("countries", "all")
	var flags map[string]bool
	if c.get(ctx, key, &flags) {
		return flags, nil
	}

	flags, err := c.ReferenceProvider.CountryFlags(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, flags)
	return flags, nil
}

// Invalidate drops the cached reference data of a scenario
func (c *ReferenceCache) Invalidate(ctx context.Context, scenarioID string) error {
	return c.client.Del(ctx,
		c.makeKey("thresholds", scenarioID),
		c.makeKey("score_buckets", scenarioID),
	).Err()
}
