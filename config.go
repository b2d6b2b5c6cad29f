package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/tmarlow/authcore/audit"
	"github.com/tmarlow/authcore/jwt"
	"github.com/tmarlow/authcore/lockout"
	"github.com/tmarlow/authcore/ratelimit"
)

// Config is the engine configuration tree. Zero values are filled in from
// defaultConfig by the builder; Build validates the merged result.
type Config struct {
	RateLimit RateLimitConfig
	Lockout   LockoutConfig
	Token     TokenConfig
	JWT       JWTConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig tunes the login and refresh limiters. Limits are
// per identifier for login and per IP for refresh.
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
	// RefreshMaxRequests throttles rotation attempts per IP. 0 disables
	// refresh throttling.
	RefreshMaxRequests int
	// Shards bounds limiter lock contention for the in-process limiter.
	Shards int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig tunes failed-login lockouts. MaxAttempts must be within
// [3, 20]; Duration at least one minute.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
	// FailureWindow is how long a failure counter survives without new
	// failures before rolling over.
	FailureWindow time.Duration
	// EscalationDecay is how long an identifier keeps its escalation count
	// for progressive backoff.
	EscalationDecay time.Duration
	Backoff         lockout.BackoffConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig tunes refresh-token families.
type TokenConfig struct {
	// TTL is the refresh-token lifetime, slid forward on rotation.
	TTL time.Duration
	// RotationGrace keeps the single most-recent rotated-away token
	// acceptable for this long, once, absorbing client retry races.
	// 0 disables the window. Bounded to one minute.
	RotationGrace time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access-token issuance. Leave SigningMethod empty to
// skip access tokens entirely; the engine then returns refresh tokens only.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod jwt.SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

func (c JWTConfig) enabled() bool { return c.SigningMethod != "" }

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async dispatch of routine events. Reuse events
// never pass through the dispatcher; they are written synchronously.
type AuditConfig struct {
	Async      bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		RateLimit: RateLimitConfig{
			Window:             time.Minute,
			MaxRequests:        10,
			RefreshMaxRequests: 30,
			Shards:             16,
		},
		Lockout: LockoutConfig{
			MaxAttempts:     5,
			Duration:        15 * time.Minute,
			FailureWindow:   15 * time.Minute,
			EscalationDecay: 24 * time.Hour,
			Backoff: lockout.BackoffConfig{
				Enabled:     true,
				Factor:      2,
				MaxDuration: 24 * time.Hour,
			},
		},
		Token: TokenConfig{
			TTL:           30 * 24 * time.Hour,
			RotationGrace: 10 * time.Second,
		},
		Audit: AuditConfig{
			Async:      true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

func validateConfig(cfg Config) error {
	if cfg.RateLimit.Window <= 0 {
		return errors.New("RateLimit.Window must be positive")
	}
	if cfg.RateLimit.MaxRequests <= 0 {
		return errors.New("RateLimit.MaxRequests must be positive")
	}
	if cfg.RateLimit.RefreshMaxRequests < 0 {
		return errors.New("RateLimit.RefreshMaxRequests must not be negative")
	}
	if cfg.Lockout.MaxAttempts < 3 || cfg.Lockout.MaxAttempts > 20 {
		return fmt.Errorf("Lockout.MaxAttempts must be within [3, 20], got %d", cfg.Lockout.MaxAttempts)
	}
	if cfg.Lockout.Duration < time.Minute {
		return errors.New("Lockout.Duration must be at least one minute")
	}
	if cfg.Lockout.Backoff.Enabled && cfg.Lockout.Backoff.Factor < 1 {
		return errors.New("Lockout.Backoff.Factor must be at least 1 when enabled")
	}
	if cfg.Token.TTL <= 0 {
		return errors.New("Token.TTL must be positive")
	}
	if cfg.Token.RotationGrace < 0 || cfg.Token.RotationGrace > time.Minute {
		return errors.New("Token.RotationGrace must be within [0, 1m]")
	}
	if cfg.JWT.enabled() && cfg.JWT.AccessTTL <= 0 {
		return errors.New("JWT.AccessTTL must be positive when signing is configured")
	}
	if cfg.Audit.Async && cfg.Audit.BufferSize < 0 {
		return errors.New("Audit.BufferSize must not be negative")
	}
	return nil
}

// dispatcherConfig maps the engine audit config onto the audit package's
// dispatcher settings.
func (c AuditConfig) dispatcherConfig() audit.Config {
	return audit.Config{
		Enabled:    c.Async,
		BufferSize: c.BufferSize,
		DropIfFull: c.DropIfFull,
	}
}

func (c RateLimitConfig) limiterConfig() ratelimit.Config {
	return ratelimit.Config{
		Window:      c.Window,
		MaxRequests: c.MaxRequests,
		Shards:      c.Shards,
	}
}
