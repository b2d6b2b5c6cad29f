package lockout

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStoreUnavailable indicates the lockout backend is unreachable.
var ErrStoreUnavailable = errors.New("lockout backend unavailable")

// State is the persisted lockout bookkeeping for one identifier.
type State struct {
	FailedAttempts int
	LockedUntil    *time.Time
	Escalations    int
}

// Store tracks failed-attempt counters, active locks, and the escalation
// count used for progressive backoff. Implementations must make
// RecordFailure atomic per identifier.
type Store interface {
	State(ctx context.Context, identifier string) (State, error)
	// RecordFailure increments the failure counter and returns the new count.
	RecordFailure(ctx context.Context, identifier string) (int, error)
	// Lock persists lockedUntil and bumps the escalation counter.
	Lock(ctx context.Context, identifier string, until time.Time) error
	// Reset clears the failure counter and lock after a verified success.
	// The escalation counter decays on its own schedule, not here.
	Reset(ctx context.Context, identifier string) error
}

type memoryEntry struct {
	failures    int
	lockedUntil *time.Time
	escalations int
	lastFailure time.Time
}

// MemoryStore is a process-local Store. The failure counter rolls over after
// the configured window of inactivity; escalations decay after decayAfter.
type MemoryStore struct {
	mu         sync.Mutex
	m          map[string]*memoryEntry
	window     time.Duration
	decayAfter time.Duration
	now        func() time.Time
}

// NewMemoryStore creates a store whose failure counts reset after window of
// inactivity and whose escalation counts decay after decayAfter. now is
// injectable for tests; nil uses the wall clock.
func NewMemoryStore(window, decayAfter time.Duration, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	if decayAfter <= 0 {
		decayAfter = 24 * time.Hour
	}
	return &MemoryStore{
		m:          make(map[string]*memoryEntry),
		window:     window,
		decayAfter: decayAfter,
		now:        now,
	}
}

func (s *MemoryStore) entry(identifier string, now time.Time) *memoryEntry {
	e, ok := s.m[identifier]
	if !ok {
		e = &memoryEntry{}
		s.m[identifier] = e
	}
	if !e.lastFailure.IsZero() && now.Sub(e.lastFailure) >= s.decayAfter {
		e.escalations = 0
	}
	if !e.lastFailure.IsZero() && now.Sub(e.lastFailure) >= s.window {
		e.failures = 0
	}
	return e
}

func (s *MemoryStore) State(_ context.Context, identifier string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(identifier, s.now())
	return State{
		FailedAttempts: e.failures,
		LockedUntil:    e.lockedUntil,
		Escalations:    e.escalations,
	}, nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, identifier string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.entry(identifier, now)
	e.failures++
	e.lastFailure = now
	return e.failures, nil
}

func (s *MemoryStore) Lock(_ context.Context, identifier string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(identifier, s.now())
	u := until
	e.lockedUntil = &u
	e.escalations++
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[identifier]
	if !ok {
		return nil
	}
	e.failures = 0
	e.lockedUntil = nil
	return nil
}
