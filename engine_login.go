package authcore

import (
	"context"
	"time"

	"github.com/tmarlow/authcore/audit"
	"github.com/tmarlow/authcore/device"
	"github.com/tmarlow/authcore/lockout"
)

// Login runs the full gate sequence: rate limit, lockout, credential check,
// device sighting, family issuance. A wrong secret and an unknown account
// both return ErrInvalidCredentials; nothing in the error distinguishes
// which gate inside the credential check failed.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	now := e.clock.Now()

	rateKey := req.Identifier
	if rateKey == "" {
		rateKey = req.IP
	}
	decision, err := e.loginLimiter.Check(ctx, rateKey)
	if err != nil {
		return nil, storageErr(err)
	}
	if !decision.Allowed {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.EventLoginRateLimited,
			Severity:  audit.SeverityMedium,
			Email:     req.Identifier,
			IP:        req.IP,
			UserAgent: req.UserAgent,
		})
		return nil, &RateLimitedError{ResetAt: decision.ResetAt}
	}

	state, err := e.lockouts.State(ctx, req.Identifier)
	if err != nil {
		return nil, storageErr(err)
	}
	gate := e.policy.Evaluate(state.FailedAttempts, state.LockedUntil, state.Escalations, now)
	if gate.Kind == lockout.Locked {
		e.metricInc(MetricLoginLocked)
		return nil, &AccountLockedError{Until: gate.Until}
	}

	userID, ok, err := e.verifier.Verify(ctx, req.Identifier, req.Secret)
	if err != nil {
		return nil, storageErr(err)
	}
	if !ok {
		return nil, e.loginFailed(ctx, req, state, now)
	}

	wasLocked := state.LockedUntil != nil
	if err := e.lockouts.Reset(ctx, req.Identifier); err != nil {
		return nil, storageErr(err)
	}
	if wasLocked {
		// The lock had expired; a verified success closes it out.
		e.emitAudit(ctx, audit.Event{
			EventType: audit.EventAccountUnlocked,
			Severity:  audit.SeverityLow,
			UserID:    userID,
			Email:     req.Identifier,
			IP:        req.IP,
			UserAgent: req.UserAgent,
		})
	}

	newDevice, trusted, err := e.recordDeviceSighting(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	issued, err := e.tokens.Issue(ctx, userID, req.IP, req.UserAgent)
	if err != nil {
		return nil, storageErr(err)
	}

	access := ""
	if e.jwt != nil {
		access, err = e.jwt.CreateAccess(userID, issued.FamilyID, issued.TokenID)
		if err != nil {
			return nil, err
		}
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, audit.Event{
		EventType: audit.EventLoginSuccess,
		Severity:  audit.SeverityLow,
		UserID:    userID,
		Email:     req.Identifier,
		FamilyID:  issued.FamilyID,
		IP:        req.IP,
		UserAgent: req.UserAgent,
	})

	return &LoginResult{
		UserID:        userID,
		AccessToken:   access,
		RefreshToken:  issued.Token,
		FamilyID:      issued.FamilyID,
		ExpiresAt:     issued.ExpiresAt,
		NewDevice:     newDevice,
		TrustedDevice: trusted,
	}, nil
}

// loginFailed books the failure, applies a lock when the threshold is
// reached, and always returns ErrInvalidCredentials.
func (e *Engine) loginFailed(ctx context.Context, req LoginRequest, state lockout.State, now time.Time) error {
	failures, err := e.lockouts.RecordFailure(ctx, req.Identifier)
	if err != nil {
		return storageErr(err)
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, audit.Event{
		EventType: audit.EventLoginFailure,
		Severity:  audit.SeverityMedium,
		Email:     req.Identifier,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		Metadata:  map[string]any{"failed_attempts": failures},
	})

	gate := e.policy.Evaluate(failures, nil, state.Escalations, now)
	if gate.Kind == lockout.ShouldLock {
		if err := e.lockouts.Lock(ctx, req.Identifier, gate.Until); err != nil {
			return storageErr(err)
		}
		e.metricInc(MetricLockoutsApplied)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.EventAccountLocked,
			Severity:  audit.SeverityHigh,
			Email:     req.Identifier,
			IP:        req.IP,
			UserAgent: req.UserAgent,
			Metadata: map[string]any{
				"failed_attempts": failures,
				"locked_until":    gate.Until,
			},
		})
	}

	return ErrInvalidCredentials
}

// recordDeviceSighting runs the login device protocol: the new_device_login
// event is emitted before the upsert so it reflects pre-update state.
func (e *Engine) recordDeviceSighting(ctx context.Context, userID string, req LoginRequest) (newDevice, trusted bool, err error) {
	fp := device.Fingerprint(req.IP, req.UserAgent)

	known, err := e.devices.IsKnown(ctx, userID, fp)
	if err != nil {
		return false, false, storageErr(err)
	}
	if !known {
		e.metricInc(MetricNewDeviceLogins)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.EventNewDeviceLogin,
			Severity:  audit.SeverityMedium,
			UserID:    userID,
			Email:     req.Identifier,
			IP:        req.IP,
			UserAgent: req.UserAgent,
			Metadata:  map[string]any{"fingerprint": fp},
		})
	} else {
		trusted, err = e.devices.IsTrusted(ctx, userID, fp)
		if err != nil {
			return false, false, storageErr(err)
		}
	}

	if err := e.devices.RecordAccess(ctx, userID, fp, req.IP, req.UserAgent); err != nil {
		return false, false, storageErr(err)
	}
	return !known, trusted, nil
}
