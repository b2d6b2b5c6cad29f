package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds fixed-window tuning parameters for the Redis limiter.
type RedisConfig struct {
	Window      time.Duration
	MaxRequests int
	KeyPrefix   string
}

// RedisLimiter enforces a fixed-window budget with shared state, for
// deployments where one process-local counter per instance is not enough.
// Fixed-window semantics: INCR, with the TTL set only by the first hit in the
// window. Rejected probes still count (the INCR happens before the
// comparison), which is a deliberate difference from SlidingWindow.
type RedisLimiter struct {
	redis redis.UniversalClient
	cfg   RedisConfig
}

func NewRedisLimiter(client redis.UniversalClient, cfg RedisConfig) *RedisLimiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl:"
	}
	return &RedisLimiter{redis: client, cfg: cfg}
}

func (l *RedisLimiter) key(identifier string) string {
	return l.cfg.KeyPrefix + identifier
}

func (l *RedisLimiter) Check(ctx context.Context, identifier string) (Decision, error) {
	key := l.key(identifier)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.cfg.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	resetAt := time.Now().Add(l.cfg.Window)
	if ttl, err := l.redis.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		resetAt = time.Now().Add(ttl)
	}

	if count > int64(l.cfg.MaxRequests) {
		return Decision{Allowed: false, ResetAt: resetAt}, nil
	}
	return Decision{Allowed: true, ResetAt: resetAt}, nil
}

// Reset clears the counter for an identifier.
func (l *RedisLimiter) Reset(ctx context.Context, identifier string) error {
	if err := l.redis.Del(ctx, l.key(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
