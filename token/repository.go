package token

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrFamilyNotFound is returned when no family exists for the ID.
	ErrFamilyNotFound = errors.New("token family not found")
	// ErrRepoUnavailable indicates the token backend is unreachable.
	ErrRepoUnavailable = errors.New("token backend unavailable")
)

// RotateStatus is the outcome of the repository's atomic rotation CAS.
type RotateStatus int

const (
	// RotateOK: the presented hash matched the current generation and was
	// consumed; the next generation is now current.
	RotateOK RotateStatus = iota
	// RotateGrace: the presented hash matched the unconsumed previous
	// generation within its grace window; a fresh generation is now current
	// and the grace slot is spent.
	RotateGrace
	// RotateMismatch: the presented hash matched no acceptable generation.
	// The caller treats this as reuse.
	RotateMismatch
	// RotateRevoked: the family was already terminally closed.
	RotateRevoked
	// RotateExpired: every generation is past its expiry.
	RotateExpired
	// RotateNotFound: no family exists for the ID.
	RotateNotFound
)

// Repository persists families. Rotate is the single operation requiring a
// true atomic boundary: two concurrent calls presenting the same hash must
// see exactly one RotateOK (or one RotateOK plus one RotateGrace when the
// grace window is open). The consume-and-issue pair happens inside one
// transaction: either both or neither.
type Repository interface {
	Insert(ctx context.Context, fam *Family) error
	Get(ctx context.Context, familyID string) (*Family, error)

	// Rotate atomically compares the provided hash against the family's live
	// generations and, on a match, installs next as the current generation.
	// The returned family reflects the post-operation state; it is non-nil
	// for every status except RotateNotFound.
	Rotate(ctx context.Context, familyID string, provided, next [32]byte, nextTokenID string, now time.Time, grace time.Duration, expiresAt time.Time) (*Family, RotateStatus, error)

	// Revoke closes the family. Idempotent: an already-revoked family keeps
	// its original reason and timestamp.
	Revoke(ctx context.Context, familyID string, reason RevokeReason, at time.Time) error

	// MarkReuseFlagged sets the once-per-family reuse marker and reports
	// whether this call was the first to set it.
	MarkReuseFlagged(ctx context.Context, familyID string) (bool, error)

	// RevokeAllForUser closes every live family of the user and returns how
	// many were closed.
	RevokeAllForUser(ctx context.Context, userID string, reason RevokeReason, at time.Time) (int, error)
}
