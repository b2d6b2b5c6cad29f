package token

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tmarlow/authcore/audit"
	"github.com/tmarlow/authcore/internal"
)

// Config holds family-manager tuning.
type Config struct {
	// TTL is the refresh-token lifetime, slid forward on every rotation.
	TTL time.Duration
	// Grace keeps the single most-recent rotated-away token acceptable for
	// this long, once, to absorb client retry races. 0 disables the window.
	Grace time.Duration
}

// Manager is the refresh-token family state machine: it issues families,
// rotates generations, and converts stale presentations into family-wide
// revocation with a critical audit event.
type Manager struct {
	repo Repository
	sink audit.Sink
	cfg  Config
	now  func() time.Time
}

// NewManager creates a Manager. sink receives token_reuse_detected events
// synchronously; nil disables them. now is injectable for tests.
func NewManager(repo Repository, sink audit.Sink, cfg Config, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	if sink == nil {
		sink = audit.NoOpSink{}
	}
	return &Manager{repo: repo, sink: sink, cfg: cfg, now: now}
}

// Issue creates a new family with a single token. Login is the only entry
// point; rotation never creates families.
func (m *Manager) Issue(ctx context.Context, userID, ip, userAgent string) (*Issued, error) {
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := m.now()
	fam := &Family{
		ID:             uuid.NewString(),
		UserID:         userID,
		CurrentHash:    internal.HashRefreshSecret(secret),
		CurrentTokenID: uuid.NewString(),
		Generation:     1,
		IPAddress:      ip,
		UserAgent:      userAgent,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.cfg.TTL),
	}

	if err := m.repo.Insert(ctx, fam); err != nil {
		return nil, err
	}

	wire, err := internal.EncodeRefreshToken(fam.ID, secret)
	if err != nil {
		return nil, err
	}

	return &Issued{
		Token:     wire,
		TokenID:   fam.CurrentTokenID,
		FamilyID:  fam.ID,
		UserID:    userID,
		ExpiresAt: fam.ExpiresAt,
	}, nil
}

// Rotate exchanges a presented token for the next generation of its family.
// A presentation that matches no acceptable generation revokes the entire
// lineage and returns ErrReuseDetected; a token whose family cannot even be
// identified returns plain ErrInvalidToken with no family-level action.
func (m *Manager) Rotate(ctx context.Context, presented, ip, userAgent string) (*Issued, error) {
	familyID, secret, err := internal.DecodeRefreshToken(presented)
	if err != nil {
		// Undecodable: no family can be inferred, fail as plain invalid.
		return nil, ErrInvalidToken
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := m.now()
	nextTokenID := uuid.NewString()
	fam, status, err := m.repo.Rotate(
		ctx,
		familyID,
		internal.HashRefreshSecret(secret),
		internal.HashRefreshSecret(nextSecret),
		nextTokenID,
		now,
		m.cfg.Grace,
		now.Add(m.cfg.TTL),
	)
	if err != nil {
		return nil, err
	}

	switch status {
	case RotateOK, RotateGrace:
		wire, err := internal.EncodeRefreshToken(familyID, nextSecret)
		if err != nil {
			return nil, err
		}
		return &Issued{
			Token:     wire,
			TokenID:   nextTokenID,
			FamilyID:  familyID,
			UserID:    fam.UserID,
			ExpiresAt: fam.ExpiresAt,
		}, nil

	case RotateNotFound:
		return nil, ErrInvalidToken

	case RotateExpired:
		// Natural death; mark the family closed for bookkeeping. Not reuse.
		_ = m.repo.Revoke(ctx, familyID, RevokeExpired, now)
		return nil, ErrInvalidToken

	case RotateMismatch:
		// The value was once valid for this family and has been consumed:
		// assume theft, nuke the lineage.
		if err := m.repo.Revoke(ctx, familyID, RevokeReuseDetected, now); err != nil {
			return nil, err
		}
		m.recordReuse(ctx, fam, ip, userAgent, "stale_generation")
		return nil, ErrReuseDetected

	case RotateRevoked:
		m.recordReuse(ctx, fam, ip, userAgent, "revoked_family")
		return nil, ErrReuseDetected

	default:
		return nil, ErrInvalidToken
	}
}

// RevokeFamily closes one family. Idempotent.
func (m *Manager) RevokeFamily(ctx context.Context, familyID string, reason RevokeReason) error {
	return m.repo.Revoke(ctx, familyID, reason, m.now())
}

// RevokeAllForUser closes every family of the user (password change,
// suspected compromise). Returns the number of families closed.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string, reason RevokeReason) (int, error) {
	return m.repo.RevokeAllForUser(ctx, userID, reason, m.now())
}

// Get returns the family record, for callers that need lineage metadata.
func (m *Manager) Get(ctx context.Context, familyID string) (*Family, error) {
	return m.repo.Get(ctx, familyID)
}

// recordReuse emits the critical event, once per family, synchronously: an
// unrecorded reuse detection is the one audit loss that must never happen
// quietly.
func (m *Manager) recordReuse(ctx context.Context, fam *Family, ip, userAgent, kind string) {
	if fam == nil {
		return
	}

	first, err := m.repo.MarkReuseFlagged(ctx, fam.ID)
	if err != nil {
		log.Printf("authcore: reuse flag update failed for family %s: %v", fam.ID, err)
		// Fall through: better a duplicate event than none.
		first = true
	}
	if !first {
		return
	}

	event := audit.Event{
		ID:        uuid.NewString(),
		Timestamp: m.now(),
		EventType: audit.EventTokenReuse,
		Severity:  audit.SeverityCritical,
		UserID:    fam.UserID,
		FamilyID:  fam.ID,
		IP:        ip,
		UserAgent: userAgent,
		Metadata: map[string]any{
			"kind":       kind,
			"generation": fam.Generation,
		},
	}
	if err := m.sink.Record(ctx, event); err != nil {
		log.Printf("authcore: CRITICAL token reuse event write failed for family %s: %v", fam.ID, err)
	}
}
