package authcore

import (
	"context"
	"errors"

	"github.com/tmarlow/authcore/audit"
	"github.com/tmarlow/authcore/internal"
	"github.com/tmarlow/authcore/token"
)

// Logout revokes the presented token's family. Idempotent: a family that is
// already revoked, or no longer exists, still logs out cleanly. Only a
// token that cannot name a family at all is rejected.
func (e *Engine) Logout(ctx context.Context, req LogoutRequest) error {
	familyID, _, err := internal.DecodeRefreshToken(req.RefreshToken)
	if err != nil {
		return ErrInvalidOrExpiredToken
	}

	fam, err := e.tokens.Get(ctx, familyID)
	if err != nil {
		if errors.Is(err, token.ErrFamilyNotFound) {
			return nil
		}
		return storageErr(err)
	}
	alreadyRevoked := fam.Revoked()

	if err := e.tokens.RevokeFamily(ctx, familyID, token.RevokeUserLogout); err != nil {
		if errors.Is(err, token.ErrFamilyNotFound) {
			return nil
		}
		return storageErr(err)
	}

	if !alreadyRevoked {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.EventSessionRevoked,
			Severity:  audit.SeverityLow,
			UserID:    fam.UserID,
			FamilyID:  familyID,
			IP:        req.IP,
			UserAgent: req.UserAgent,
			Metadata:  map[string]any{"reason": string(token.RevokeUserLogout)},
		})
	}
	return nil
}

// RevokeAllSessions closes every family of the user: admin action or
// suspected compromise. Returns how many live families were closed.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	n, err := e.tokens.RevokeAllForUser(ctx, userID, token.RevokeAdmin)
	if err != nil {
		return 0, storageErr(err)
	}
	if n > 0 {
		e.metricInc(MetricSessionsBulkRevoked)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.EventSessionRevoked,
			Severity:  audit.SeverityMedium,
			UserID:    userID,
			Metadata: map[string]any{
				"reason":   string(token.RevokeAdmin),
				"families": n,
			},
		})
	}
	return n, nil
}

// NotifyPasswordChanged is the hook the identity layer calls after a
// successful password change: every session lineage dies, the lockout
// bookkeeping resets, and the change lands in the audit trail.
func (e *Engine) NotifyPasswordChanged(ctx context.Context, userID, identifier string) error {
	if _, err := e.tokens.RevokeAllForUser(ctx, userID, token.RevokePasswordChanged); err != nil {
		return storageErr(err)
	}
	if identifier != "" {
		if err := e.lockouts.Reset(ctx, identifier); err != nil {
			return storageErr(err)
		}
	}
	e.emitAudit(ctx, audit.Event{
		EventType: audit.EventPasswordChanged,
		Severity:  audit.SeverityLow,
		UserID:    userID,
		Email:     identifier,
	})
	return nil
}

// UnlockAccount clears an active lock and failure counters by admin action.
func (e *Engine) UnlockAccount(ctx context.Context, identifier string) error {
	if err := e.lockouts.Reset(ctx, identifier); err != nil {
		return storageErr(err)
	}
	e.emitAudit(ctx, audit.Event{
		EventType: audit.EventAccountUnlocked,
		Severity:  audit.SeverityLow,
		Email:     identifier,
		Metadata:  map[string]any{"by": "admin"},
	})
	return nil
}
