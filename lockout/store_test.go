package lockout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStoreFailureLifecycle(t *testing.T) {
	clk := &fakeClock{now: testNow}
	s := NewMemoryStore(15*time.Minute, 24*time.Hour, clk.Now)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := s.RecordFailure(ctx, "alice")
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if n != i {
			t.Fatalf("expected count %d, got %d", i, n)
		}
	}

	if err := s.Reset(ctx, "alice"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	st, _ := s.State(ctx, "alice")
	if st.FailedAttempts != 0 || st.LockedUntil != nil {
		t.Fatalf("expected clean state after reset, got %+v", st)
	}
}

func TestMemoryStoreWindowRollover(t *testing.T) {
	clk := &fakeClock{now: testNow}
	s := NewMemoryStore(time.Minute, 24*time.Hour, clk.Now)
	ctx := context.Background()

	_, _ = s.RecordFailure(ctx, "alice")
	_, _ = s.RecordFailure(ctx, "alice")

	clk.Advance(2 * time.Minute)
	n, _ := s.RecordFailure(ctx, "alice")
	if n != 1 {
		t.Fatalf("expected counter to roll over to 1, got %d", n)
	}
}

func TestMemoryStoreLockAndEscalations(t *testing.T) {
	clk := &fakeClock{now: testNow}
	s := NewMemoryStore(time.Minute, time.Hour, clk.Now)
	ctx := context.Background()

	until := clk.Now().Add(time.Minute)
	if err := s.Lock(ctx, "alice", until); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	st, _ := s.State(ctx, "alice")
	if st.LockedUntil == nil || !st.LockedUntil.Equal(until) {
		t.Fatalf("expected lock until %v, got %+v", until, st.LockedUntil)
	}
	if st.Escalations != 1 {
		t.Fatalf("expected 1 escalation, got %d", st.Escalations)
	}

	// Reset clears the lock but keeps the escalation history.
	_ = s.Reset(ctx, "alice")
	st, _ = s.State(ctx, "alice")
	if st.LockedUntil != nil {
		t.Fatal("expected lock cleared")
	}
	if st.Escalations != 1 {
		t.Fatalf("escalations should survive reset, got %d", st.Escalations)
	}
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, time.Minute, time.Hour), mr
}

func TestRedisStoreFailureLifecycle(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := s.RecordFailure(ctx, "alice")
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if n != i {
			t.Fatalf("expected count %d, got %d", i, n)
		}
	}

	st, err := s.State(ctx, "alice")
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if st.FailedAttempts != 3 {
		t.Fatalf("expected 3 failures, got %d", st.FailedAttempts)
	}

	if err := s.Reset(ctx, "alice"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	st, _ = s.State(ctx, "alice")
	if st.FailedAttempts != 0 {
		t.Fatalf("expected 0 failures after reset, got %d", st.FailedAttempts)
	}
}

func TestRedisStoreFailureWindowExpires(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	_, _ = s.RecordFailure(ctx, "alice")
	_, _ = s.RecordFailure(ctx, "alice")

	mr.FastForward(2 * time.Minute)

	n, _ := s.RecordFailure(ctx, "alice")
	if n != 1 {
		t.Fatalf("expected counter restart after TTL, got %d", n)
	}
}

func TestRedisStoreLockRoundtrip(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	until := time.Now().Add(time.Minute).Truncate(time.Nanosecond)
	if err := s.Lock(ctx, "alice", until); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	st, err := s.State(ctx, "alice")
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if st.LockedUntil == nil {
		t.Fatal("expected a lock")
	}
	if !st.LockedUntil.Equal(until) {
		t.Fatalf("lock until %v, want %v", st.LockedUntil, until)
	}
	if st.Escalations != 1 {
		t.Fatalf("expected 1 escalation, got %d", st.Escalations)
	}
}

func TestRedisStoreLockExpires(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	_ = s.Lock(ctx, "alice", time.Now().Add(time.Minute))
	mr.FastForward(2 * time.Minute)

	st, _ := s.State(ctx, "alice")
	if st.LockedUntil != nil {
		t.Fatal("expected lock key to expire")
	}
	// Escalations persist past the lock itself.
	if st.Escalations != 1 {
		t.Fatalf("expected escalation to survive lock expiry, got %d", st.Escalations)
	}
}
