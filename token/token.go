package token

import "time"

// RevokeReason explains why a family was terminated.
type RevokeReason string

const (
	RevokeUserLogout      RevokeReason = "user_logout"
	RevokeReuseDetected   RevokeReason = "reuse_detected"
	RevokeAdmin           RevokeReason = "admin_revoked"
	RevokePasswordChanged RevokeReason = "password_changed"
	RevokeExpired         RevokeReason = "expired"
)

// Family is the denormalized record of one refresh-token lineage: one row
// holding the hashes of the two live generations instead of one row per
// issued token. At most one generation is current; once RevokedAt is set no
// generation is ever accepted again.
type Family struct {
	ID     string
	UserID string

	// CurrentHash is the SHA-256 of the only unconsumed secret.
	CurrentHash    [32]byte
	CurrentTokenID string

	// PrevHash is the hash of the most recently rotated-away secret. It is
	// honored once, within the grace window, to absorb client retry races.
	PrevHash       [32]byte
	PrevGraceUntil time.Time
	PrevConsumed   bool

	Generation int

	// Captured at family creation.
	IPAddress string
	UserAgent string

	CreatedAt time.Time
	ExpiresAt time.Time

	RevokedAt    *time.Time
	RevokeReason RevokeReason

	// ReuseFlagged gates the token_reuse_detected event to once per family.
	ReuseFlagged bool
}

// Revoked reports whether the family is terminally closed.
func (f *Family) Revoked() bool {
	return f != nil && f.RevokedAt != nil
}

// Issued is one minted refresh token: the opaque wire value plus the
// metadata of the generation it belongs to.
type Issued struct {
	Token     string
	TokenID   string
	FamilyID  string
	UserID    string
	ExpiresAt time.Time
}
