package token

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	familyKeyPrefix = "tf:"
	userSetPrefix   = "tfu:"
)

// rotateFamilyLua performs the rotation compare-and-swap in a single script
// so concurrent presentations of the same token cannot both rotate.
//
// KEYS[1] family hash key.
// ARGV[1] provided hash (hex), ARGV[2] next hash (hex), ARGV[3] next token id,
// ARGV[4] now unix millis, ARGV[5] grace millis, ARGV[6] new expiry unix millis.
//
// Returns 0 not found, 1 rotated, 2 grace rotated, 3 mismatch, 4 revoked,
// 5 expired.
var rotateFamilyLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if redis.call('HGET', KEYS[1], 'revoked_at') then
  return 4
end
local now = tonumber(ARGV[4])
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires'))
if now >= expires then
  return 5
end
local cur = redis.call('HGET', KEYS[1], 'cur')
if cur == ARGV[1] then
  redis.call('HSET', KEYS[1], 'prev', cur)
  redis.call('HSET', KEYS[1], 'prev_grace', now + tonumber(ARGV[5]))
  redis.call('HSET', KEYS[1], 'prev_used', '0')
  redis.call('HSET', KEYS[1], 'cur', ARGV[2])
  redis.call('HSET', KEYS[1], 'cur_id', ARGV[3])
  redis.call('HSET', KEYS[1], 'expires', ARGV[6])
  redis.call('HINCRBY', KEYS[1], 'gen', 1)
  return 1
end
local prev = redis.call('HGET', KEYS[1], 'prev')
local used = redis.call('HGET', KEYS[1], 'prev_used')
local pg = tonumber(redis.call('HGET', KEYS[1], 'prev_grace'))
if prev and prev == ARGV[1] and used == '0' and pg and now < pg then
  redis.call('HSET', KEYS[1], 'prev_used', '1')
  redis.call('HSET', KEYS[1], 'cur', ARGV[2])
  redis.call('HSET', KEYS[1], 'cur_id', ARGV[3])
  redis.call('HSET', KEYS[1], 'expires', ARGV[6])
  redis.call('HINCRBY', KEYS[1], 'gen', 1)
  return 2
end
return 3
`)

// revokeFamilyLua sets revoked_at exactly once.
// Returns -1 not found, 1 revoked now, 0 already revoked.
var revokeFamilyLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if redis.call('HSETNX', KEYS[1], 'revoked_at', ARGV[1]) == 1 then
  redis.call('HSET', KEYS[1], 'revoke_reason', ARGV[2])
  return 1
end
return 0
`)

// RedisRepository stores each family as a hash keyed by tf:<id>, with a
// per-user set tfu:<uid> indexing family ids for bulk revocation. All times
// inside the hash are unix milliseconds; hashes are lowercase hex.
type RedisRepository struct {
	client redis.UniversalClient
}

func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) Insert(ctx context.Context, fam *Family) error {
	key := familyKeyPrefix + fam.ID
	fields := map[string]any{
		"user":       fam.UserID,
		"cur":        hex.EncodeToString(fam.CurrentHash[:]),
		"cur_id":     fam.CurrentTokenID,
		"prev":       "",
		"prev_grace": "0",
		"prev_used":  "1",
		"gen":        strconv.Itoa(fam.Generation),
		"ip":         fam.IPAddress,
		"ua":         fam.UserAgent,
		"created":    strconv.FormatInt(fam.CreatedAt.UnixMilli(), 10),
		"expires":    strconv.FormatInt(fam.ExpiresAt.UnixMilli(), 10),
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, userSetPrefix+fam.UserID, fam.ID)
	// Keys outlive logical expiry by a day so late presenters still see a
	// deliberate expired/revoked answer instead of not-found.
	pipe.PExpireAt(ctx, key, fam.ExpiresAt.Add(24*time.Hour))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRepoUnavailable, err)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, familyID string) (*Family, error) {
	vals, err := r.client.HGetAll(ctx, familyKeyPrefix+familyID).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepoUnavailable, err)
	}
	if len(vals) == 0 {
		return nil, ErrFamilyNotFound
	}
	return decodeFamily(familyID, vals)
}

func (r *RedisRepository) Rotate(ctx context.Context, familyID string, provided, next [32]byte, nextTokenID string, now time.Time, grace time.Duration, expiresAt time.Time) (*Family, RotateStatus, error) {
	key := familyKeyPrefix + familyID
	res, err := rotateFamilyLua.Run(ctx, r.client, []string{key},
		hex.EncodeToString(provided[:]),
		hex.EncodeToString(next[:]),
		nextTokenID,
		now.UnixMilli(),
		grace.Milliseconds(),
		expiresAt.UnixMilli(),
	).Int()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRepoUnavailable, err)
	}

	var status RotateStatus
	switch res {
	case 0:
		return nil, RotateNotFound, nil
	case 1:
		status = RotateOK
	case 2:
		status = RotateGrace
	case 3:
		status = RotateMismatch
	case 4:
		status = RotateRevoked
	case 5:
		status = RotateExpired
	default:
		return nil, 0, fmt.Errorf("%w: unexpected rotate result %d", ErrRepoUnavailable, res)
	}

	if status == RotateOK || status == RotateGrace {
		// Best effort, the logical expiry inside the hash is authoritative.
		r.client.PExpireAt(ctx, key, expiresAt.Add(24*time.Hour))
	}

	fam, err := r.Get(ctx, familyID)
	if err != nil {
		return nil, 0, err
	}
	return fam, status, nil
}

func (r *RedisRepository) Revoke(ctx context.Context, familyID string, reason RevokeReason, at time.Time) error {
	res, err := revokeFamilyLua.Run(ctx, r.client, []string{familyKeyPrefix + familyID},
		at.UnixMilli(), string(reason),
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRepoUnavailable, err)
	}
	if res == -1 {
		return ErrFamilyNotFound
	}
	return nil
}

func (r *RedisRepository) MarkReuseFlagged(ctx context.Context, familyID string) (bool, error) {
	key := familyKeyPrefix + familyID
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRepoUnavailable, err)
	}
	if exists == 0 {
		return false, ErrFamilyNotFound
	}
	set, err := r.client.HSetNX(ctx, key, "reuse_flagged", "1").Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRepoUnavailable, err)
	}
	return set, nil
}

func (r *RedisRepository) RevokeAllForUser(ctx context.Context, userID string, reason RevokeReason, at time.Time) (int, error) {
	ids, err := r.client.SMembers(ctx, userSetPrefix+userID).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRepoUnavailable, err)
	}
	count := 0
	for _, id := range ids {
		res, err := revokeFamilyLua.Run(ctx, r.client, []string{familyKeyPrefix + id},
			at.UnixMilli(), string(reason),
		).Int()
		if err != nil {
			return count, fmt.Errorf("%w: %v", ErrRepoUnavailable, err)
		}
		if res == 1 {
			count++
		}
	}
	return count, nil
}

func decodeFamily(id string, vals map[string]string) (*Family, error) {
	fam := &Family{
		ID:             id,
		UserID:         vals["user"],
		CurrentTokenID: vals["cur_id"],
		IPAddress:      vals["ip"],
		UserAgent:      vals["ua"],
		RevokeReason:   RevokeReason(vals["revoke_reason"]),
		ReuseFlagged:   vals["reuse_flagged"] == "1",
		PrevConsumed:   vals["prev_used"] != "0",
	}

	cur, err := hex.DecodeString(vals["cur"])
	if err != nil || len(cur) != 32 {
		return nil, fmt.Errorf("%w: corrupt current hash for family %s", ErrRepoUnavailable, id)
	}
	copy(fam.CurrentHash[:], cur)

	if v := vals["prev"]; v != "" {
		prev, err := hex.DecodeString(v)
		if err != nil || len(prev) != 32 {
			return nil, fmt.Errorf("%w: corrupt previous hash for family %s", ErrRepoUnavailable, id)
		}
		copy(fam.PrevHash[:], prev)
	}

	gen, err := strconv.Atoi(vals["gen"])
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt generation for family %s", ErrRepoUnavailable, id)
	}
	fam.Generation = gen

	ms := func(field string) (time.Time, error) {
		n, err := strconv.ParseInt(vals[field], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: corrupt %s for family %s", ErrRepoUnavailable, field, id)
		}
		return time.UnixMilli(n), nil
	}

	if fam.CreatedAt, err = ms("created"); err != nil {
		return nil, err
	}
	if fam.ExpiresAt, err = ms("expires"); err != nil {
		return nil, err
	}
	if fam.PrevGraceUntil, err = ms("prev_grace"); err != nil {
		return nil, err
	}
	if v, ok := vals["revoked_at"]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt revoked_at for family %s", ErrRepoUnavailable, id)
		}
		t := time.UnixMilli(n)
		fam.RevokedAt = &t
	}
	return fam, nil
}
