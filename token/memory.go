package token

import (
	"context"
	"sync"
	"time"

	"github.com/tmarlow/authcore/internal"
)

// MemoryRepository is a mutex-guarded in-process Repository: the reference
// implementation of the rotation CAS, and the test backend.
type MemoryRepository struct {
	mu       sync.Mutex
	families map[string]*Family
	byUser   map[string]map[string]struct{}
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		families: make(map[string]*Family),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (r *MemoryRepository) Insert(_ context.Context, fam *Family) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *fam
	r.families[fam.ID] = &cp
	if r.byUser[fam.UserID] == nil {
		r.byUser[fam.UserID] = make(map[string]struct{})
	}
	r.byUser[fam.UserID][fam.ID] = struct{}{}
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, familyID string) (*Family, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fam, ok := r.families[familyID]
	if !ok {
		return nil, ErrFamilyNotFound
	}
	cp := *fam
	return &cp, nil
}

func (r *MemoryRepository) Rotate(_ context.Context, familyID string, provided, next [32]byte, nextTokenID string, now time.Time, grace time.Duration, expiresAt time.Time) (*Family, RotateStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fam, ok := r.families[familyID]
	if !ok {
		return nil, RotateNotFound, nil
	}

	snapshot := func() *Family { cp := *fam; return &cp }

	if fam.RevokedAt != nil {
		return snapshot(), RotateRevoked, nil
	}
	if !now.Before(fam.ExpiresAt) {
		return snapshot(), RotateExpired, nil
	}

	if internal.ConstantTimeEqual(provided, fam.CurrentHash) {
		fam.PrevHash = fam.CurrentHash
		fam.PrevGraceUntil = now.Add(grace)
		fam.PrevConsumed = false
		fam.CurrentHash = next
		fam.CurrentTokenID = nextTokenID
		fam.Generation++
		fam.ExpiresAt = expiresAt
		return snapshot(), RotateOK, nil
	}

	if !fam.PrevConsumed &&
		fam.Generation > 1 &&
		now.Before(fam.PrevGraceUntil) &&
		internal.ConstantTimeEqual(provided, fam.PrevHash) {
		fam.PrevConsumed = true
		fam.CurrentHash = next
		fam.CurrentTokenID = nextTokenID
		fam.Generation++
		fam.ExpiresAt = expiresAt
		return snapshot(), RotateGrace, nil
	}

	return snapshot(), RotateMismatch, nil
}

func (r *MemoryRepository) Revoke(_ context.Context, familyID string, reason RevokeReason, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fam, ok := r.families[familyID]
	if !ok {
		return ErrFamilyNotFound
	}
	if fam.RevokedAt != nil {
		return nil
	}
	t := at
	fam.RevokedAt = &t
	fam.RevokeReason = reason
	return nil
}

func (r *MemoryRepository) MarkReuseFlagged(_ context.Context, familyID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fam, ok := r.families[familyID]
	if !ok {
		return false, ErrFamilyNotFound
	}
	if fam.ReuseFlagged {
		return false, nil
	}
	fam.ReuseFlagged = true
	return true, nil
}

func (r *MemoryRepository) RevokeAllForUser(_ context.Context, userID string, reason RevokeReason, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id := range r.byUser[userID] {
		fam := r.families[id]
		if fam == nil || fam.RevokedAt != nil {
			continue
		}
		t := at
		fam.RevokedAt = &t
		fam.RevokeReason = reason
		count++
	}
	return count, nil
}
