/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/athleon_scheduler/internal/events"
)

const channelPrefix = "athleon:schedules:"

// RedisBus fans schedule changes out across replicas over Redis pub/sub.
// Changes published by other nodes are re-delivered on the local bus so
// every replica's live feed sees them.
type RedisBus struct {
	client *redis.Client
	local  *events.Bus
	logger zerolog.Logger
	nodeID string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Circuit breaker state
	mu          sync.Mutex
	useFallback bool
	failCount   int
	maxFails    int
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Connection pooling
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures int
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxFailures:  5,
	}
}

// ChannelFor returns the pub/sub channel for a competition event.
func ChannelFor(eventID string) string {
	return channelPrefix + eventID
}

// NewRedisBus creates a Redis-backed fan-out. When Redis is unreachable the
// bus starts in fallback mode and only the local bus is used.
func NewRedisBus(cfg RedisConfig, nodeID string, local *events.Bus, logger zerolog.Logger) *RedisBus {
	logger = logger.With().Str("component", "redis_bus").Logger()
	ctx, cancel := context.WithCancel(context.Background())

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	rb := &RedisBus{
		client:   client,
		local:    local,
		logger:   logger,
		nodeID:   nodeID,
		maxFails: cfg.MaxFailures,
		ctx:      ctx,
		cancel:   cancel,
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer pingCancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis connection failed, schedule changes stay local")
		rb.useFallback = true
		return rb
	}

	rb.wg.Add(1)
	go rb.receiveMessages(client.PSubscribe(ctx, channelPrefix+"*"))

	logger.Info().Str("addr", cfg.Addr).Msg("Redis event bus initialized")
	return rb
}

// Fallback reports whether the bus has given up on Redis.
func (rb *RedisBus) Fallback() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.useFallback
}

// receiveMessages relays changes from other nodes onto the local bus.
func (rb *RedisBus) receiveMessages(pubsub *redis.PubSub) {
	defer rb.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-rb.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				rb.logger.Warn().Msg("Redis channel closed")
				rb.handleFailure()
				return
			}

			decoded, err := unmarshalMessage([]byte(msg.Payload))
			if err != nil {
				rb.logger.Error().Err(err).Str("channel", msg.Channel).Msg("failed to unmarshal Redis message")
				continue
			}

			// Skip messages from ourselves (prevent echo)
			if decoded.NodeID == rb.nodeID {
				continue
			}

			if rb.local != nil {
				rb.local.Publish(decoded.Change.Type(), decoded.Change.Payload())
			}

			rb.logger.Debug().
				Str("event_id", strings.TrimPrefix(msg.Channel, channelPrefix)).
				Str("source_node", decoded.NodeID).
				Msg("delivered remote schedule change")
		}
	}
}

// Notify publishes the change to Redis. Local delivery is the in-process
// bus's job, so nothing happens here in fallback mode.
func (rb *RedisBus) Notify(ctx context.Context, change events.ScheduleChange) error {
	if rb.Fallback() {
		return nil
	}

	data, err := marshalMessage(change, rb.nodeID)
	if err != nil {
		return err
	}

	if err := rb.client.Publish(ctx, ChannelFor(change.EventID), data).Err(); err != nil {
		rb.handleFailure()
		return fmt.Errorf("publish to redis: %w", err)
	}

	// Reset failure count on success
	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()
	return nil
}

// Close stops the receiver and closes the Redis client.
func (rb *RedisBus) Close() error {
	rb.cancel()
	rb.wg.Wait()

	if err := rb.client.Close(); err != nil {
		rb.logger.Error().Err(err).Msg("failed to close Redis client")
		return err
	}
	return nil
}

// handleFailure implements circuit breaker logic.
func (rb *RedisBus) handleFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.failCount++

	if rb.failCount >= rb.maxFails && !rb.useFallback {
		rb.logger.Warn().
			Int("fail_count", rb.failCount).
			Msg("Redis failure threshold reached, schedule changes stay local")
		rb.useFallback = true
	}
}
