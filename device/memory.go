package device

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a process-local Repository, for tests and
// single-process deployments.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string]*TrustedDevice // key: userID + "\x00" + fingerprint
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*TrustedDevice)}
}

func memKey(userID, fingerprint string) string {
	return userID + "\x00" + fingerprint
}

func (r *MemoryRepository) Find(_ context.Context, userID, fingerprint string) (*TrustedDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.m[memKey(userID, fingerprint)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, in TrustedDevice) (*TrustedDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := memKey(in.UserID, in.Fingerprint)
	d, ok := r.m[key]
	if !ok {
		d = &TrustedDevice{
			ID:          uuid.NewString(),
			UserID:      in.UserID,
			Fingerprint: in.Fingerprint,
			FirstSeenAt: in.FirstSeenAt,
		}
		r.m[key] = d
	}
	d.IPAddress = in.IPAddress
	d.UserAgent = in.UserAgent
	d.LastSeenAt = in.LastSeenAt

	cp := *d
	return &cp, nil
}

func (r *MemoryRepository) SetTrusted(_ context.Context, userID, fingerprint string, trustedAt *time.Time, label string) (*TrustedDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.m[memKey(userID, fingerprint)]
	if !ok {
		return nil, ErrNotFound
	}
	if trustedAt != nil {
		t := *trustedAt
		d.TrustedAt = &t
		if label != "" {
			d.Label = label
		}
	} else {
		d.TrustedAt = nil
	}

	cp := *d
	return &cp, nil
}

func (r *MemoryRepository) ListForUser(_ context.Context, userID string) ([]TrustedDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []TrustedDevice
	for _, d := range r.m {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeenAt.Before(out[j].FirstSeenAt) })
	return out, nil
}
