package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a shared Store for multi-instance deployments. Keys:
//
//	lf:<id>  — failure counter, TTL = rolling window
//	ll:<id>  — locked-until (unix nanos), TTL = lock duration
//	le:<id>  — escalation counter, TTL = decay window
type RedisStore struct {
	redis      redis.UniversalClient
	window     time.Duration
	decayAfter time.Duration
}

func NewRedisStore(client redis.UniversalClient, window, decayAfter time.Duration) *RedisStore {
	if window <= 0 {
		window = 15 * time.Minute
	}
	if decayAfter <= 0 {
		decayAfter = 24 * time.Hour
	}
	return &RedisStore{redis: client, window: window, decayAfter: decayAfter}
}

func failureKey(id string) string    { return "lf:" + id }
func lockKey(id string) string       { return "ll:" + id }
func escalationKey(id string) string { return "le:" + id }

func (s *RedisStore) State(ctx context.Context, identifier string) (State, error) {
	pipe := s.redis.Pipeline()
	failures := pipe.Get(ctx, failureKey(identifier))
	locked := pipe.Get(ctx, lockKey(identifier))
	escalations := pipe.Get(ctx, escalationKey(identifier))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return State{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var st State
	if n, err := failures.Int64(); err == nil {
		st.FailedAttempts = int(n)
	}
	if n, err := escalations.Int64(); err == nil {
		st.Escalations = int(n)
	}
	if raw, err := locked.Result(); err == nil {
		nanos, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr == nil {
			until := time.Unix(0, nanos)
			st.LockedUntil = &until
		}
	}
	return st, nil
}

func (s *RedisStore) RecordFailure(ctx context.Context, identifier string) (int, error) {
	key := failureKey(identifier)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Rolling window: TTL set only by the first failure.
	if count == 1 {
		if err := s.redis.Expire(ctx, key, s.window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return int(count), nil
}

func (s *RedisStore) Lock(ctx context.Context, identifier string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		ttl = time.Second
	}

	pipe := s.redis.Pipeline()
	pipe.Set(ctx, lockKey(identifier), strconv.FormatInt(until.UnixNano(), 10), ttl)
	pipe.Incr(ctx, escalationKey(identifier))
	pipe.Expire(ctx, escalationKey(identifier), s.decayAfter)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Reset(ctx context.Context, identifier string) error {
	if err := s.redis.Del(ctx, failureKey(identifier), lockKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
