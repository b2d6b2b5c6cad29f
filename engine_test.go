package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tmarlow/authcore/audit"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newManualClock() *manualClock {
	return &manualClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testConfig disables async audit dispatch so sink contents can be
// asserted immediately after each call.
func testConfig() Config {
	cfg := defaultConfig()
	cfg.Audit.Async = false
	return cfg
}

func testVerifier() CredentialVerifier {
	accounts := map[string]struct {
		userID string
		secret string
	}{
		"alice@example.com": {"user-alice", "correct horse battery staple"},
		"bob@example.com":   {"user-bob", "tr0ub4dor&3"},
	}
	return VerifierFunc(func(_ context.Context, identifier, secret string) (string, bool, error) {
		acct, ok := accounts[identifier]
		if !ok || acct.secret != secret {
			return "", false, nil
		}
		return acct.userID, true, nil
	})
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *audit.MemorySink, *manualClock) {
	t.Helper()

	sink := audit.NewMemorySink()
	clock := newManualClock()
	eng, err := New().
		WithConfig(cfg).
		WithVerifier(testVerifier()).
		WithEventSink(sink).
		WithClock(clock).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng, sink, clock
}

func aliceLogin() LoginRequest {
	return LoginRequest{
		Identifier: "alice@example.com",
		Secret:     "correct horse battery staple",
		IP:         "203.0.113.7",
		UserAgent:  "cli/1.0",
	}
}

func mustLogin(t *testing.T, eng *Engine, req LoginRequest) *LoginResult {
	t.Helper()
	res, err := eng.Login(context.Background(), req)
	if err != nil {
		t.Fatalf("Login(%s): %v", req.Identifier, err)
	}
	return res
}

func countEvents(sink *audit.MemorySink, typ audit.EventType) int {
	return len(sink.ByType(typ))
}
