package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable indicates the device backend is unreachable.
var ErrStoreUnavailable = errors.New("device backend unavailable")

// RedisRepository stores one hash per (user, fingerprint) plus a per-user set
// index for listing. Keys:
//
//	td:<user>:<fp>  — device hash
//	tdu:<user>      — set of fingerprints
type RedisRepository struct {
	redis redis.UniversalClient
}

func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{redis: client}
}

func deviceKey(userID, fp string) string { return "td:" + userID + ":" + fp }
func userIndexKey(userID string) string  { return "tdu:" + userID }

func (r *RedisRepository) Find(ctx context.Context, userID, fingerprint string) (*TrustedDevice, error) {
	fields, err := r.redis.HGetAll(ctx, deviceKey(userID, fingerprint)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeDevice(userID, fingerprint, fields), nil
}

func (r *RedisRepository) Upsert(ctx context.Context, in TrustedDevice) (*TrustedDevice, error) {
	key := deviceKey(in.UserID, in.Fingerprint)

	created, err := r.redis.HSetNX(ctx, key, "id", uuid.NewString()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	pipe := r.redis.Pipeline()
	if created {
		pipe.HSet(ctx, key, "first_seen", in.FirstSeenAt.UnixNano())
		pipe.SAdd(ctx, userIndexKey(in.UserID), in.Fingerprint)
	}
	pipe.HSet(ctx, key,
		"ip", in.IPAddress,
		"ua", in.UserAgent,
		"last_seen", in.LastSeenAt.UnixNano(),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return r.Find(ctx, in.UserID, in.Fingerprint)
}

func (r *RedisRepository) SetTrusted(ctx context.Context, userID, fingerprint string, trustedAt *time.Time, label string) (*TrustedDevice, error) {
	key := deviceKey(userID, fingerprint)

	exists, err := r.redis.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	if trustedAt != nil {
		fields := []any{"trusted_at", trustedAt.UnixNano()}
		if label != "" {
			fields = append(fields, "label", label)
		}
		if err := r.redis.HSet(ctx, key, fields...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	} else {
		if err := r.redis.HDel(ctx, key, "trusted_at").Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return r.Find(ctx, userID, fingerprint)
}

func (r *RedisRepository) ListForUser(ctx context.Context, userID string) ([]TrustedDevice, error) {
	fps, err := r.redis.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]TrustedDevice, 0, len(fps))
	for _, fp := range fps {
		d, err := r.Find(ctx, userID, fp)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

func decodeDevice(userID, fingerprint string, fields map[string]string) *TrustedDevice {
	d := &TrustedDevice{
		ID:          fields["id"],
		UserID:      userID,
		Fingerprint: fingerprint,
		Label:       fields["label"],
		IPAddress:   fields["ip"],
		UserAgent:   fields["ua"],
	}
	if v, err := strconv.ParseInt(fields["first_seen"], 10, 64); err == nil {
		d.FirstSeenAt = time.Unix(0, v)
	}
	if v, err := strconv.ParseInt(fields["last_seen"], 10, 64); err == nil {
		d.LastSeenAt = time.Unix(0, v)
	}
	if raw, ok := fields["trusted_at"]; ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			t := time.Unix(0, v)
			d.TrustedAt = &t
		}
	}
	return d
}
