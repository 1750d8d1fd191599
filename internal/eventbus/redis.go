/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/pdradio/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	RetryInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		RetryInterval: 30 * time.Second,
	}
}

// RedisBus publishes locally and mirrors events over Redis pub/sub.
// After MaxFailures consecutive publish errors it stops using Redis until a
// ping succeeds again, at most once per RetryInterval.
type RedisBus struct {
	local  *events.Bus
	client *redis.Client
	pubsub *redis.PubSub
	nodeID string
	cfg    RedisConfig
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	useFallback bool
	failCount   int
	lastCheck   time.Time
}

// NewRedisBus creates a Redis-backed event bus. An unreachable server puts
// the bus straight into fallback mode.
func NewRedisBus(cfg RedisConfig, local *events.Bus, nodeID string, logger zerolog.Logger) *RedisBus {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	rb := &RedisBus{
		local:  local,
		nodeID: nodeID,
		cfg:    cfg,
		logger: logger.With().Str("component", "eventbus").Str("backend", "redis").Logger(),
		ctx:    ctx,
		cancel: cancel,
		client: redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}),
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := rb.client.Ping(pingCtx).Err(); err != nil {
		rb.logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis connection failed, using in-memory fallback")
		rb.useFallback = true
		rb.lastCheck = time.Now()
		return rb
	}

	rb.pubsub = rb.client.PSubscribe(ctx, SubjectPrefix+"*")
	rb.wg.Add(1)
	go rb.receive()

	rb.logger.Info().Str("addr", cfg.Addr).Str("node_id", nodeID).Msg("Redis event bus initialized")
	return rb
}

func (rb *RedisBus) receive() {
	defer rb.wg.Done()
	ch := rb.pubsub.Channel()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, ok := eventTypeFromSubject(msg.Channel); !ok {
				continue
			}
			if _, err := relay(rb.local, rb.nodeID, []byte(msg.Payload)); err != nil {
				rb.logger.Error().Err(err).Str("channel", msg.Channel).Msg("dropping malformed Redis event")
			}
		}
	}
}

// Publish sends the event to local subscribers and, unless tripped, to Redis.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.local.Publish(eventType, payload)

	if rb.inFallback() {
		return
	}

	data, err := marshalEnvelope(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()
	if err := rb.client.Publish(ctx, subjectFor(eventType), data).Err(); err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to Redis")
		rb.handleFailure()
		return
	}

	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()
}

// Subscribe registers a local subscriber.
func (rb *RedisBus) Subscribe(eventType events.EventType) events.Subscriber {
	return rb.local.Subscribe(eventType)
}

// Unsubscribe removes a local subscriber.
func (rb *RedisBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	rb.local.Unsubscribe(eventType, sub)
}

// Remote reports whether events are currently mirrored to Redis.
func (rb *RedisBus) Remote() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return !rb.useFallback
}

// inFallback reports the breaker state, probing Redis when the retry interval elapsed.
func (rb *RedisBus) inFallback() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if !rb.useFallback {
		return false
	}
	if err := rb.tryReconnectLocked(); err != nil {
		return true
	}
	return false
}

func (rb *RedisBus) handleFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.failCount++
	if rb.failCount >= rb.cfg.MaxFailures && !rb.useFallback {
		rb.logger.Warn().
			Int("fail_count", rb.failCount).
			Msg("Redis failure threshold reached, switching to in-memory fallback")
		rb.useFallback = true
		rb.lastCheck = time.Now()
	}
}

func (rb *RedisBus) tryReconnectLocked() error {
	if time.Since(rb.lastCheck) < rb.cfg.RetryInterval {
		return fmt.Errorf("too soon to retry")
	}
	rb.lastCheck = time.Now()

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()
	if err := rb.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis still unavailable: %w", err)
	}

	rb.useFallback = false
	rb.failCount = 0
	if rb.pubsub == nil {
		rb.pubsub = rb.client.PSubscribe(rb.ctx, SubjectPrefix+"*")
		rb.wg.Add(1)
		go rb.receive()
	}
	rb.logger.Info().Msg("reconnected to Redis, disabling fallback")
	return nil
}

// Close stops the receiver and closes the Redis client.
func (rb *RedisBus) Close() error {
	rb.cancel()
	rb.mu.Lock()
	pubsub := rb.pubsub
	rb.mu.Unlock()
	if pubsub != nil {
		_ = pubsub.Close()
	}
	rb.wg.Wait()
	if err := rb.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
