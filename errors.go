package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited is returned when the identifier has exhausted its
	// request budget. Errors of this kind usually carry a RateLimitedError
	// with the reset time.
	ErrRateLimited = errors.New("rate limited")
	// ErrAccountLocked is returned while a lockout is in force. Usually
	// carried by an AccountLockedError with the unlock time.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidCredentials covers both a wrong password and a nonexistent
	// account; callers must not be able to tell them apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidOrExpiredToken: the refresh token is malformed, unknown, or
	// expired. No reuse implication.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired session")
	// ErrSessionRevoked: reuse was detected and the family revoked. The
	// message is identical to ErrInvalidOrExpiredToken so clients cannot
	// distinguish detection from ordinary expiry; the audit trail carries
	// the real classification.
	ErrSessionRevoked = errors.New("invalid or expired session")
	// ErrStorageFailure wraps any repository or store failure. Fatal for
	// the request; retry policy belongs to the storage layer.
	ErrStorageFailure = errors.New("storage failure")
)

// RateLimitedError carries the reset-time hint alongside ErrRateLimited.
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited until %s", e.ResetAt.Format(time.RFC3339))
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// AccountLockedError carries the unlock time alongside ErrAccountLocked.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

func (e *AccountLockedError) Is(target error) bool { return target == ErrAccountLocked }
