package authcore

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/tmarlow/authcore/audit"
	"github.com/tmarlow/authcore/device"
	"github.com/tmarlow/authcore/jwt"
	"github.com/tmarlow/authcore/lockout"
	"github.com/tmarlow/authcore/ratelimit"
	"github.com/tmarlow/authcore/token"
)

// Engine is the session orchestrator: it composes the rate limiter, lockout
// policy, device trust, token families, and the audit trail around the
// login, refresh, and logout flows. Safe for concurrent use.
type Engine struct {
	config         Config
	clock          Clock
	verifier       CredentialVerifier
	sink           audit.Sink
	dispatcher     *audit.Dispatcher
	metrics        *Metrics
	loginLimiter   ratelimit.Limiter
	refreshLimiter ratelimit.Limiter
	lockouts       lockout.Store
	policy         lockout.Policy
	devices        *device.Manager
	tokens         *token.Manager
	jwt            *jwt.Manager
}

// Close drains the async audit dispatcher. Call on shutdown.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.dispatcher.Close()
}

// MetricsSnapshot returns the current counter values keyed by name. Empty
// when metrics are disabled.
func (e *Engine) MetricsSnapshot() map[string]uint64 {
	if e == nil {
		return map[string]uint64{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports routine events discarded because the async buffer
// was full. Reuse events are never counted here; they bypass the buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

// emitAudit records a routine event: through the dispatcher when async is
// enabled, synchronously otherwise. Failures never block the caller.
func (e *Engine) emitAudit(ctx context.Context, event audit.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.clock.Now()
	}
	if e.dispatcher != nil {
		e.dispatcher.Emit(ctx, event)
		return
	}
	if err := e.sink.Record(ctx, event); err != nil {
		logf("audit sink write failed: %v", err)
	}
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageFailure, err)
}

func logf(format string, args ...any) {
	log.Printf("authcore: "+format, args...)
}
