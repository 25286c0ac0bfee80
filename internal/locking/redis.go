/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package locking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisConfig configures the distributed lock.
type RedisConfig struct {
	KeyPrefix     string
	LeaseDuration time.Duration // How long a held lock survives a crashed holder
	RetryInterval time.Duration
}

// DefaultRedisConfig returns default lock configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		KeyPrefix:     "athleon:lock:schedule:",
		LeaseDuration: 15 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	}
}

// RedisLocker is a lease lock shared by every replica. The lease expires on
// its own if the holder dies, and only the holder's token can release it.
type RedisLocker struct {
	client *redis.Client
	config RedisConfig
	logger zerolog.Logger
}

// NewRedisLocker creates a distributed locker on an existing client.
func NewRedisLocker(client *redis.Client, cfg RedisConfig, logger zerolog.Logger) *RedisLocker {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRedisConfig().RetryInterval
	}
	return &RedisLocker{
		client: client,
		config: cfg,
		logger: logger.With().Str("component", "redis_locker").Logger(),
	}
}

// Lock retries SET NX PX until it wins or ctx ends.
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.config.KeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.config.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.config.LeaseDuration).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire %s: %w", redisKey, err)
		}
		if ok {
			return func() { r.release(redisKey, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %s: %w", key, ErrLockTimeout)
		case <-ticker.C:
		}
	}
}

func (r *RedisLocker) release(redisKey, token string) {
	// The caller's context may already be done, so release on a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", redisKey).Msg("failed to release lock, lease will expire")
	}
}
