/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based read cache for the latest version of
// each schedule.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/friendsincode/athleon_scheduler/internal/models"
	"github.com/friendsincode/athleon_scheduler/internal/telemetry"
)

// DefaultScheduleTTL bounds how long a latest-schedule entry lives.
const DefaultScheduleTTL = 10 * time.Minute

// DefaultRetryInterval is how long a tripped cache waits before probing
// Redis again.
const DefaultRetryInterval = 30 * time.Second

// KeySchedule is the key prefix of cached schedules.
const KeySchedule = "athleon:schedule:" // + schedule_id

// Fields of the per-schedule hash.
const (
	fieldVersion  = "version"
	fieldSchedule = "schedule"
)

// setIfNewerScript writes the schedule unless the cached copy is already at
// a higher version. A reader that loaded vN before a writer cached vN+1 must
// not put vN back.
var setIfNewerScript = redis.NewScript(`
local current = tonumber(redis.call("HGET", KEYS[1], "version"))
if current and current > tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "version", ARGV[1], "schedule", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ScheduleTTL time.Duration

	// Fallback behavior
	DisableOnError bool          // If true, disable caching on Redis errors
	RetryInterval  time.Duration // Wait before re-probing a disabled cache
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		ScheduleTTL:    DefaultScheduleTTL,
		DisableOnError: true,
		RetryInterval:  DefaultRetryInterval,
	}
}

// Loader fetches the latest schedule from the source of truth.
type Loader func(ctx context.Context) (*models.Schedule, error)

// backend is the slice of Redis the cache needs.
type backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetIfNewer(ctx context.Context, key string, version int, data []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

type redisBackend struct {
	client *redis.Client
}

func (r redisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return r.client.HGet(ctx, key, fieldSchedule).Bytes()
}

func (r redisBackend) SetIfNewer(ctx context.Context, key string, version int, data []byte, ttl time.Duration) (bool, error) {
	n, err := setIfNewerScript.Run(ctx, r.client, []string{key}, version, data, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r redisBackend) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r redisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r redisBackend) Close() error {
	return r.client.Close()
}

// Cache provides Redis-backed caching with graceful fallback. Concurrent
// misses for the same schedule share one load.
type Cache struct {
	backend backend
	logger  zerolog.Logger
	config  Config
	group   singleflight.Group

	mu         sync.RWMutex
	disabled   bool // Circuit breaker state
	disabledAt time.Time
	probing    bool
	// Schedules written while tripped. Their cached entries may be stale
	// and are dropped once Redis answers again.
	stale map[string]struct{}
}

// New creates a new cache instance. An empty address yields a cache that
// always delegates to the loader. An unreachable server starts the cache
// tripped; it is probed again after RetryInterval.
func New(cfg Config, logger zerolog.Logger) *Cache {
	logger = logger.With().Str("component", "cache").Logger()

	if cfg.RedisAddr == "" {
		return newWithBackend(cfg, nil, logger)
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
	c := newWithBackend(cfg, redisBackend{client: client}, logger)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		c.trip()
		return c
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return c
}

func newWithBackend(cfg Config, b backend, logger zerolog.Logger) *Cache {
	if cfg.ScheduleTTL <= 0 {
		cfg.ScheduleTTL = DefaultScheduleTTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	return &Cache{backend: b, logger: logger, config: cfg, disabled: b == nil, stale: map[string]struct{}{}}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.backend != nil {
		return c.backend.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.backend != nil
}

func (c *Cache) trip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.disabled {
		c.logger.Warn().Dur("retry_in", c.config.RetryInterval).Msg("disabling cache due to Redis error")
	}
	c.disabled = true
	c.disabledAt = time.Now()
}

// ready reports whether the cache may be used, probing a tripped cache once
// its retry interval has passed. Only one caller probes at a time.
func (c *Cache) ready(ctx context.Context) bool {
	if c.backend == nil {
		return false
	}
	c.mu.Lock()
	if !c.disabled {
		c.mu.Unlock()
		return true
	}
	if c.probing || time.Since(c.disabledAt) < c.config.RetryInterval {
		c.mu.Unlock()
		return false
	}
	c.probing = true
	c.mu.Unlock()

	err := c.backend.Ping(ctx)
	if err == nil {
		err = c.dropStale(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.probing = false
	if err != nil {
		c.disabledAt = time.Now()
		c.logger.Debug().Err(err).Msg("cache probe failed")
		return false
	}
	c.disabled = false
	c.logger.Info().Msg("Redis cache re-enabled")
	return true
}

// markStale remembers a schedule committed while the cache was tripped.
func (c *Cache) markStale(scheduleID string) {
	if c.backend == nil {
		return
	}
	c.mu.Lock()
	c.stale[scheduleID] = struct{}{}
	c.mu.Unlock()
}

func (c *Cache) dropStale(ctx context.Context) error {
	c.mu.RLock()
	ids := make([]string, 0, len(c.stale))
	for id := range c.stale {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	for _, id := range ids {
		if err := c.backend.Del(ctx, scheduleKey(id)); err != nil {
			return err
		}
		c.mu.Lock()
		delete(c.stale, id)
		c.mu.Unlock()
	}
	return nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.trip()
	}
}

func scheduleKey(scheduleID string) string {
	return KeySchedule + scheduleID
}

// GetSchedule returns the cached latest schedule.
func (c *Cache) GetSchedule(ctx context.Context, eventID, scheduleID string) (*models.Schedule, bool) {
	if !c.ready(ctx) {
		return nil, false
	}

	data, err := c.backend.Get(ctx, scheduleKey(scheduleID))
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.handleError(err, "get")
		return nil, false
	}

	var sched models.Schedule
	if err := json.Unmarshal(data, &sched); err != nil {
		c.logger.Debug().Err(err).Str("schedule_id", scheduleID).Msg("failed to unmarshal cached schedule")
		return nil, false
	}
	// Schedule ids are global but reads are scoped by event.
	if sched.EventID != eventID {
		return nil, false
	}
	return &sched, true
}

// SetSchedule stores sched as the latest version of its schedule unless a
// newer version is already cached.
func (c *Cache) SetSchedule(ctx context.Context, sched *models.Schedule) error {
	if !c.ready(ctx) {
		c.markStale(sched.ScheduleID)
		return nil
	}

	data, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	stored, err := c.backend.SetIfNewer(ctx, scheduleKey(sched.ScheduleID), sched.Version, data, c.config.ScheduleTTL)
	if err != nil {
		c.handleError(err, "set")
		c.markStale(sched.ScheduleID)
		return err
	}
	if !stored {
		c.logger.Debug().
			Str("schedule_id", sched.ScheduleID).
			Int("version", sched.Version).
			Msg("newer schedule already cached")
	}
	return nil
}

// Invalidate drops the cached latest schedule.
func (c *Cache) Invalidate(ctx context.Context, scheduleID string) error {
	if !c.ready(ctx) {
		c.markStale(scheduleID)
		return nil
	}

	if err := c.backend.Del(ctx, scheduleKey(scheduleID)); err != nil {
		c.handleError(err, "delete")
		c.markStale(scheduleID)
		return err
	}
	return nil
}

// Latest returns the cached schedule or loads, caches and returns it.
func (c *Cache) Latest(ctx context.Context, eventID, scheduleID string, load Loader) (*models.Schedule, error) {
	if sched, ok := c.GetSchedule(ctx, eventID, scheduleID); ok {
		telemetry.CacheOperationsTotal.WithLabelValues("hit").Inc()
		return sched, nil
	}
	result := "miss"
	if !c.IsAvailable() {
		result = "bypass"
	}
	telemetry.CacheOperationsTotal.WithLabelValues(result).Inc()

	v, err, _ := c.group.Do(eventID+"/"+scheduleID, func() (any, error) {
		sched, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.SetSchedule(ctx, sched); err != nil {
			c.logger.Debug().Err(err).Str("schedule_id", scheduleID).Msg("failed to populate cache")
		}
		return sched, nil
	})
	if err != nil {
		return nil, err
	}
	// Callers sharing a load each get their own copy.
	return v.(*models.Schedule).Clone(), nil
}
