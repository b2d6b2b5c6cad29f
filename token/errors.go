package token

import "errors"

var (
	// ErrInvalidToken covers malformed, unknown, and expired tokens: cases
	// with no reuse implication and no family-level action.
	ErrInvalidToken = errors.New("invalid or expired refresh token")
	// ErrReuseDetected is returned when an already-consumed or
	// already-revoked generation is presented again. By the time the caller
	// sees it the whole family has been revoked.
	ErrReuseDetected = errors.New("refresh token reuse detected")
)
