package lockout

import (
	"math"
	"time"
)

// DecisionKind classifies the outcome of a policy evaluation.
type DecisionKind int

const (
	// Allowed means the account is not locked and under the threshold.
	Allowed DecisionKind = iota
	// Locked means an existing lock is still in force.
	Locked
	// ShouldLock means the failure count has reached the threshold and the
	// caller must persist a lock and emit the account_locked event.
	ShouldLock
)

// Decision is the result of evaluating the lockout policy. Until is set for
// Locked and ShouldLock.
type Decision struct {
	Kind  DecisionKind
	Until time.Time
}

// Policy is the pure lockout decision function plus the progressive-backoff
// duration schedule. It holds no state; counters live in a Store.
type Policy struct {
	cfg Config
}

// Config holds lockout thresholds. MaxAttempts must be within [3, 20] and
// Duration at least one minute (validated by the engine config pass).
type Config struct {
	MaxAttempts int
	Duration    time.Duration
	// Backoff grows the lock duration with repeated lockouts:
	// Duration * Factor^escalations, capped at MaxDuration. Factor <= 1
	// disables the growth.
	Backoff BackoffConfig
}

type BackoffConfig struct {
	Enabled     bool
	Factor      float64
	MaxDuration time.Duration
}

func NewPolicy(cfg Config) Policy {
	return Policy{cfg: cfg}
}

// Evaluate decides whether a login may proceed given the current failure
// count and any persisted lock. failedAttempts is the count including the
// attempt being evaluated; escalations is how many locks this identifier has
// already earned (used only for backoff).
func (p Policy) Evaluate(failedAttempts int, lockedUntil *time.Time, escalations int, now time.Time) Decision {
	if lockedUntil != nil && now.Before(*lockedUntil) {
		return Decision{Kind: Locked, Until: *lockedUntil}
	}

	if failedAttempts >= p.cfg.MaxAttempts {
		return Decision{Kind: ShouldLock, Until: now.Add(p.LockDuration(escalations))}
	}

	return Decision{Kind: Allowed}
}

// LockDuration returns the lock duration for the given escalation count.
func (p Policy) LockDuration(escalations int) time.Duration {
	d := p.cfg.Duration
	b := p.cfg.Backoff
	if !b.Enabled || b.Factor <= 1 || escalations <= 0 {
		return d
	}

	scaled := float64(d) * math.Pow(b.Factor, float64(escalations))
	if b.MaxDuration > 0 && scaled > float64(b.MaxDuration) {
		return b.MaxDuration
	}
	if scaled > float64(math.MaxInt64) {
		return b.MaxDuration
	}
	return time.Duration(scaled)
}
