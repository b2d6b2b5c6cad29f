package device

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no device row exists for the
// (user, fingerprint) pair.
var ErrNotFound = errors.New("device not found")

// TrustedDevice is one known device for one user. TrustedAt == nil means the
// device is known (seen before) but has not been explicitly trusted.
type TrustedDevice struct {
	ID          string
	UserID      string
	Fingerprint string
	Label       string
	IPAddress   string
	UserAgent   string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	TrustedAt   *time.Time
}

// Repository persists device rows. Upsert may race harmlessly:
// last-writer-wins on LastSeenAt is acceptable, no transaction required.
type Repository interface {
	Find(ctx context.Context, userID, fingerprint string) (*TrustedDevice, error)
	// Upsert creates the row on first sight or refreshes
	// LastSeenAt/IPAddress/UserAgent on a later one. It must never modify
	// TrustedAt or Label.
	Upsert(ctx context.Context, d TrustedDevice) (*TrustedDevice, error)
	// SetTrusted sets (or clears, with nil) TrustedAt, and the label when
	// trusting. Returns ErrNotFound for an unknown pair.
	SetTrusted(ctx context.Context, userID, fingerprint string, trustedAt *time.Time, label string) (*TrustedDevice, error)
	ListForUser(ctx context.Context, userID string) ([]TrustedDevice, error)
}

// Manager answers the known/trusted questions and applies device sightings.
type Manager struct {
	repo Repository
	now  func() time.Time
}

func NewManager(repo Repository, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{repo: repo, now: now}
}

// IsKnown reports whether any row exists for the pair, trusted or not.
func (m *Manager) IsKnown(ctx context.Context, userID, fingerprint string) (bool, error) {
	d, err := m.repo.Find(ctx, userID, fingerprint)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return d != nil, nil
}

// IsTrusted reports whether a row exists and has been explicitly trusted.
func (m *Manager) IsTrusted(ctx context.Context, userID, fingerprint string) (bool, error) {
	d, err := m.repo.Find(ctx, userID, fingerprint)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return d != nil && d.TrustedAt != nil, nil
}

// RecordAccess upserts the sighting: creates the row on first sight, always
// refreshes LastSeenAt/IPAddress/UserAgent, never touches TrustedAt.
func (m *Manager) RecordAccess(ctx context.Context, userID, fingerprint, ip, userAgent string) error {
	now := m.now()
	_, err := m.repo.Upsert(ctx, TrustedDevice{
		UserID:      userID,
		Fingerprint: fingerprint,
		IPAddress:   ip,
		UserAgent:   userAgent,
		FirstSeenAt: now,
		LastSeenAt:  now,
	})
	return err
}

// Trust marks the device explicitly trusted. Explicit user/admin action
// only; logins never call this.
func (m *Manager) Trust(ctx context.Context, userID, fingerprint, label string) (*TrustedDevice, error) {
	now := m.now()
	return m.repo.SetTrusted(ctx, userID, fingerprint, &now, label)
}

// Revoke clears the trusted mark but keeps the row: the device stays known.
func (m *Manager) Revoke(ctx context.Context, userID, fingerprint string) (*TrustedDevice, error) {
	return m.repo.SetTrusted(ctx, userID, fingerprint, nil, "")
}

// List returns every known device for a user.
func (m *Manager) List(ctx context.Context, userID string) ([]TrustedDevice, error) {
	return m.repo.ListForUser(ctx, userID)
}
