package authcore

import (
	"context"
	"time"
)

// Clock supplies the current time. Injectable so window rotation, grace
// deadlines, and lockout expiry are deterministic under test.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a func to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// CredentialVerifier checks an identifier/secret pair. It returns the user
// ID on success because the engine keys families, devices, and audit records
// by user. A missing account and a wrong secret must both return ok=false
// with a nil error; err is reserved for backend failures.
type CredentialVerifier interface {
	Verify(ctx context.Context, identifier, secret string) (userID string, ok bool, err error)
}

// VerifierFunc adapts a func to CredentialVerifier.
type VerifierFunc func(ctx context.Context, identifier, secret string) (string, bool, error)

func (f VerifierFunc) Verify(ctx context.Context, identifier, secret string) (string, bool, error) {
	return f(ctx, identifier, secret)
}

// LoginRequest carries one login attempt. Identifier is whatever the
// deployment authenticates by (email, username); it also keys the rate
// limiter and lockout counters.
type LoginRequest struct {
	Identifier string
	Secret     string
	IP         string
	UserAgent  string
}

// LoginResult is a successful login.
type LoginResult struct {
	UserID       string
	AccessToken  string // empty when no JWT config was provided
	RefreshToken string
	FamilyID     string
	ExpiresAt    time.Time // refresh-token expiry

	// NewDevice reports that this (user, fingerprint) pair had never been
	// seen before this login.
	NewDevice bool
	// TrustedDevice reports that the device was explicitly trusted before
	// this login.
	TrustedDevice bool
}

// RefreshRequest carries one token-rotation attempt.
type RefreshRequest struct {
	RefreshToken string
	IP           string
	UserAgent    string
}

// RefreshResult is a successful rotation.
type RefreshResult struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	FamilyID     string
	ExpiresAt    time.Time
}

// LogoutRequest ends one session lineage.
type LogoutRequest struct {
	RefreshToken string
	IP           string
	UserAgent    string
}
