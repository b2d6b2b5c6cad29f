package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed bool
	// ResetAt is when the caller can expect capacity again. Populated on
	// rejection; best-effort on acceptance.
	ResetAt time.Time
}

// Limiter is the single check contract the engine consumes. A check both
// tests and (when allowed) consumes one unit of budget for the identifier.
type Limiter interface {
	Check(ctx context.Context, identifier string) (Decision, error)
}

// Config holds sliding-window tuning parameters.
type Config struct {
	Window      time.Duration
	MaxRequests int
	// Shards bounds lock contention: identifiers hash onto independent
	// mutex-protected maps. Defaults to 16.
	Shards int
}

// entry is the per-identifier counter pair. The estimate interpolates the
// previous window's count by how far the current window has progressed,
// trading boundary accuracy for O(1) memory per identifier.
type entry struct {
	prevCount   int
	currCount   int
	windowStart time.Time
}

type shard struct {
	mu     sync.Mutex
	m      map[string]*entry
	checks int
}

// SlidingWindow is an in-process sliding-window counter limiter. State is
// process-local: multi-instance deployments that need a shared budget should
// use RedisLimiter instead.
type SlidingWindow struct {
	cfg    Config
	now    func() time.Time
	shards []*shard
}

// cleanupEvery is the per-shard check interval between opportunistic sweeps
// of stale identifiers. Amortized: no background timer.
const cleanupEvery = 256

// NewSlidingWindow creates a limiter. now is injectable for deterministic
// tests; nil uses the wall clock.
func NewSlidingWindow(cfg Config, now func() time.Time) *SlidingWindow {
	if cfg.Shards <= 0 {
		cfg.Shards = 16
	}
	if now == nil {
		now = time.Now
	}

	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{m: make(map[string]*entry)}
	}

	return &SlidingWindow{cfg: cfg, now: now, shards: shards}
}

func (l *SlidingWindow) shardFor(identifier string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identifier))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

// Check tests and consumes one unit of budget for the identifier. Rejected
// checks do not increment the counter, so being over the limit does not
// extend the penalty.
func (l *SlidingWindow) Check(_ context.Context, identifier string) (Decision, error) {
	now := l.now()
	window := l.cfg.Window

	s := l.shardFor(identifier)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checks++
	if s.checks%cleanupEvery == 0 {
		l.sweepLocked(s, now)
	}

	e, ok := s.m[identifier]
	if !ok {
		e = &entry{windowStart: now}
		s.m[identifier] = e
	}

	elapsed := now.Sub(e.windowStart)
	switch {
	case elapsed >= 2*window:
		// Both windows stale.
		e.prevCount = 0
		e.currCount = 0
		e.windowStart = now
		elapsed = 0
	case elapsed >= window:
		// Rotate: current becomes previous.
		e.prevCount = e.currCount
		e.currCount = 0
		e.windowStart = e.windowStart.Add(window)
		elapsed = now.Sub(e.windowStart)
	}

	weight := 1 - float64(elapsed)/float64(window)
	if weight < 0 {
		weight = 0
	}
	estimate := float64(e.prevCount)*weight + float64(e.currCount)

	resetAt := e.windowStart.Add(window)
	if estimate >= float64(l.cfg.MaxRequests) {
		return Decision{Allowed: false, ResetAt: resetAt}, nil
	}

	e.currCount++
	return Decision{Allowed: true, ResetAt: resetAt}, nil
}

// sweepLocked removes identifiers whose both windows are stale, bounding
// memory. Caller holds the shard lock.
func (l *SlidingWindow) sweepLocked(s *shard, now time.Time) {
	cutoff := 2 * l.cfg.Window
	for id, e := range s.m {
		if now.Sub(e.windowStart) >= cutoff {
			delete(s.m, id)
		}
	}
}

// Len reports the number of tracked identifiers across all shards.
func (l *SlidingWindow) Len() int {
	total := 0
	for _, s := range l.shards {
		s.mu.Lock()
		total += len(s.m)
		s.mu.Unlock()
	}
	return total
}
