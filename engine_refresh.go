package authcore

import (
	"context"
	"errors"

	"github.com/tmarlow/authcore/token"
)

// Refresh rotates the presented token. Reuse detection and ordinary
// invalidity both read as "session invalid" to the caller; only errors.Is
// against the internal sentinels, and the audit trail, tell them apart.
func (e *Engine) Refresh(ctx context.Context, req RefreshRequest) (*RefreshResult, error) {
	if e.refreshLimiter != nil {
		decision, err := e.refreshLimiter.Check(ctx, req.IP)
		if err != nil {
			return nil, storageErr(err)
		}
		if !decision.Allowed {
			return nil, &RateLimitedError{ResetAt: decision.ResetAt}
		}
	}

	issued, err := e.tokens.Rotate(ctx, req.RefreshToken, req.IP, req.UserAgent)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrReuseDetected):
			e.metricInc(MetricRefreshReuseDetected)
			return nil, ErrSessionRevoked
		case errors.Is(err, token.ErrInvalidToken):
			e.metricInc(MetricRefreshInvalid)
			return nil, ErrInvalidOrExpiredToken
		default:
			return nil, storageErr(err)
		}
	}

	access := ""
	if e.jwt != nil {
		access, err = e.jwt.CreateAccess(issued.UserID, issued.FamilyID, issued.TokenID)
		if err != nil {
			return nil, err
		}
	}

	e.metricInc(MetricRefreshSuccess)
	return &RefreshResult{
		UserID:       issued.UserID,
		AccessToken:  access,
		RefreshToken: issued.Token,
		FamilyID:     issued.FamilyID,
		ExpiresAt:    issued.ExpiresAt,
	}, nil
}
