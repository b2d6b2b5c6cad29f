package authcore

import "time"

// SecurityReport is a read-only snapshot of which protections the engine is
// running with, for startup logging and operational review.
type SecurityReport struct {
	RateLimitingActive    bool
	RateLimitWindow       time.Duration
	RateLimitMaxRequests  int
	RefreshThrottleActive bool
	LockoutMaxAttempts    int
	LockoutDuration       time.Duration
	ProgressiveBackoff    bool
	RefreshTTL            time.Duration
	RotationGrace         time.Duration
	ReuseDetectionEnabled bool
	AccessTokensEnabled   bool
	SigningAlgorithm      string
	AsyncAuditDispatch    bool
	MetricsEnabled        bool
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		RateLimitingActive:    true,
		RateLimitWindow:       e.config.RateLimit.Window,
		RateLimitMaxRequests:  e.config.RateLimit.MaxRequests,
		RefreshThrottleActive: e.refreshLimiter != nil,
		LockoutMaxAttempts:    e.config.Lockout.MaxAttempts,
		LockoutDuration:       e.config.Lockout.Duration,
		ProgressiveBackoff:    e.config.Lockout.Backoff.Enabled,
		RefreshTTL:            e.config.Token.TTL,
		RotationGrace:         e.config.Token.RotationGrace,
		// Reuse detection is structural: every rotation path fails closed.
		ReuseDetectionEnabled: true,
		AccessTokensEnabled:   e.jwt != nil,
		SigningAlgorithm:      string(e.config.JWT.SigningMethod),
		AsyncAuditDispatch:    e.dispatcher != nil,
		MetricsEnabled:        e.metrics != nil,
	}
}
