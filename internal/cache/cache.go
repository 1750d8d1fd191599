/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache keeps Internet Archive responses in Redis so repeated station
// selections skip the network.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/pdradio/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values for cached archive responses.
const (
	DefaultSearchTTL   = 30 * time.Minute
	DefaultMetadataTTL = 6 * time.Hour
)

// Key prefixes for Redis cache.
const (
	keyRoot     = "pdradio:cache:"
	KeySearch   = keyRoot + "search:"   // + sha1(rows|query)
	KeyMetadata = keyRoot + "metadata:" // + identifier
)

// Kind labels cache metrics.
type Kind string

const (
	KindSearch   Kind = "search"
	KindMetadata Kind = "metadata"
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SearchTTL   time.Duration
	MetadataTTL time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		SearchTTL:      DefaultSearchTTL,
		MetadataTTL:    DefaultMetadataTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. A nil *Cache is
// valid and never hits.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance. An unreachable Redis yields a disabled
// cache rather than an error.
func New(cfg Config, logger zerolog.Logger) *Cache {
	logger = logger.With().Str("component", "cache").Logger()
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = DefaultSearchTTL
	}
	if cfg.MetadataTTL <= 0 {
		cfg.MetadataTTL = DefaultMetadataTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return &Cache{logger: logger, config: cfg, disabled: true}
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c != nil && c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

func (c *Cache) get(ctx context.Context, kind Kind, key string) ([]byte, bool) {
	if !c.IsAvailable() {
		return nil, false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		c.handleError(err, "get")
		telemetry.CacheMissesTotal.WithLabelValues(string(kind)).Inc()
		return nil, false
	}
	telemetry.CacheHitsTotal.WithLabelValues(string(kind)).Inc()
	return data, true
}

func (c *Cache) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// SearchKey derives the Redis key for an advanced search.
func SearchKey(query string, rows int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%d|%s", rows, query)))
	return KeySearch + hex.EncodeToString(sum[:])
}

// MetadataKey derives the Redis key for an item's metadata.
func MetadataKey(identifier string) string {
	return KeyMetadata + identifier
}

// GetSearch returns a cached raw search response.
func (c *Cache) GetSearch(ctx context.Context, query string, rows int) ([]byte, bool) {
	return c.get(ctx, KindSearch, SearchKey(query, rows))
}

// SetSearch stores a raw search response.
func (c *Cache) SetSearch(ctx context.Context, query string, rows int, body []byte) error {
	if !c.IsAvailable() {
		return nil
	}
	return c.set(ctx, SearchKey(query, rows), body, c.config.SearchTTL)
}

// GetMetadata returns a cached raw metadata response.
func (c *Cache) GetMetadata(ctx context.Context, identifier string) ([]byte, bool) {
	return c.get(ctx, KindMetadata, MetadataKey(identifier))
}

// SetMetadata stores a raw metadata response.
func (c *Cache) SetMetadata(ctx context.Context, identifier string, body []byte) error {
	if !c.IsAvailable() {
		return nil
	}
	return c.set(ctx, MetadataKey(identifier), body, c.config.MetadataTTL)
}

// FlushAll deletes every pdradio cache key.
func (c *Cache) FlushAll(ctx context.Context) error {
	if !c.IsAvailable() {
		return nil
	}

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyRoot+"*", 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Info().Msg("archive cache flushed")
	return nil
}
