package authcore

import (
	"context"
	"errors"
	"testing"

	"github.com/tmarlow/authcore/audit"
	"github.com/tmarlow/authcore/token"
)

func TestLogoutEndsLineage(t *testing.T) {
	eng, sink, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	login := mustLogin(t, eng, aliceLogin())

	req := LogoutRequest{RefreshToken: login.RefreshToken, IP: "203.0.113.7"}
	if err := eng.Logout(ctx, req); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	revoked := sink.ByType(audit.EventSessionRevoked)
	if len(revoked) != 1 {
		t.Fatalf("session_revoked events = %d, want 1", len(revoked))
	}
	if revoked[0].Metadata["reason"] != "user_logout" {
		t.Fatalf("reason = %v, want user_logout", revoked[0].Metadata["reason"])
	}

	// The token no longer refreshes.
	if _, err := eng.Refresh(ctx, RefreshRequest{RefreshToken: login.RefreshToken}); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("refresh after logout: err = %v, want ErrSessionRevoked", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	eng, sink, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	login := mustLogin(t, eng, aliceLogin())
	req := LogoutRequest{RefreshToken: login.RefreshToken}

	for i := 0; i < 3; i++ {
		if err := eng.Logout(ctx, req); err != nil {
			t.Fatalf("Logout #%d: %v", i+1, err)
		}
	}
	if got := countEvents(sink, audit.EventSessionRevoked); got != 1 {
		t.Fatalf("session_revoked events = %d, want 1", got)
	}

	// A token that cannot name a family at all is the only rejection.
	err := eng.Logout(ctx, LogoutRequest{RefreshToken: "not-a-token"})
	if !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("err = %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestRevokeAllSessions(t *testing.T) {
	eng, sink, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	a := mustLogin(t, eng, aliceLogin())
	b := mustLogin(t, eng, aliceLogin())

	bob := LoginRequest{
		Identifier: "bob@example.com",
		Secret:     "tr0ub4dor&3",
		IP:         "198.51.100.2",
		UserAgent:  "cli/1.0",
	}
	other := mustLogin(t, eng, bob)

	n, err := eng.RevokeAllSessions(ctx, "user-alice")
	if err != nil {
		t.Fatalf("RevokeAllSessions: %v", err)
	}
	if n != 2 {
		t.Fatalf("revoked %d families, want 2", n)
	}

	for _, tok := range []string{a.RefreshToken, b.RefreshToken} {
		if _, err := eng.Refresh(ctx, RefreshRequest{RefreshToken: tok}); !errors.Is(err, ErrSessionRevoked) {
			t.Fatalf("alice token after bulk revoke: err = %v", err)
		}
	}
	// Bob's session is untouched.
	if _, err := eng.Refresh(ctx, RefreshRequest{RefreshToken: other.RefreshToken, IP: bob.IP}); err != nil {
		t.Fatalf("bob's refresh: %v", err)
	}

	if got := countEvents(sink, audit.EventSessionRevoked); got != 1 {
		t.Fatalf("session_revoked events = %d, want 1 bulk event", got)
	}

	// Nothing left to revoke: no second event.
	n, err = eng.RevokeAllSessions(ctx, "user-alice")
	if err != nil || n != 0 {
		t.Fatalf("second bulk revoke: n = %d, err = %v", n, err)
	}
	if got := countEvents(sink, audit.EventSessionRevoked); got != 1 {
		t.Fatalf("session_revoked events after no-op = %d, want 1", got)
	}
}

func TestNotifyPasswordChanged(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MaxRequests = 100
	eng, sink, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	login := mustLogin(t, eng, aliceLogin())

	// Build up some failure state to verify the reset.
	bad := aliceLogin()
	bad.Secret = "nope"
	for i := 0; i < 3; i++ {
		eng.Login(ctx, bad)
	}

	if err := eng.NotifyPasswordChanged(ctx, "user-alice", "alice@example.com"); err != nil {
		t.Fatalf("NotifyPasswordChanged: %v", err)
	}

	if _, err := eng.Refresh(ctx, RefreshRequest{RefreshToken: login.RefreshToken}); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("refresh after password change: err = %v", err)
	}
	if got := countEvents(sink, audit.EventPasswordChanged); got != 1 {
		t.Fatalf("password_changed events = %d, want 1", got)
	}

	// The family rows agree with the audit trail on why they died.
	fam, err := eng.tokens.Get(ctx, login.FamilyID)
	if err != nil {
		t.Fatalf("get family: %v", err)
	}
	if fam.RevokeReason != token.RevokePasswordChanged {
		t.Fatalf("revoke reason = %q, want %q", fam.RevokeReason, token.RevokePasswordChanged)
	}

	// Lockout counters were reset: two more failures stay under a fresh
	// threshold of five.
	for i := 0; i < 2; i++ {
		if _, err := eng.Login(ctx, bad); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("post-reset failure %d: err = %v", i, err)
		}
	}
	mustLogin(t, eng, aliceLogin())
}

func TestUnlockAccount(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MaxRequests = 100
	eng, sink, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	bad := aliceLogin()
	bad.Secret = "nope"
	for i := 0; i < cfg.Lockout.MaxAttempts; i++ {
		eng.Login(ctx, bad)
	}
	if _, err := eng.Login(ctx, aliceLogin()); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}

	if err := eng.UnlockAccount(ctx, "alice@example.com"); err != nil {
		t.Fatalf("UnlockAccount: %v", err)
	}
	mustLogin(t, eng, aliceLogin())

	unlocked := sink.ByType(audit.EventAccountUnlocked)
	if len(unlocked) != 1 {
		t.Fatalf("account_unlocked events = %d, want 1", len(unlocked))
	}
	if unlocked[0].Metadata["by"] != "admin" {
		t.Fatalf("metadata = %v, want admin attribution", unlocked[0].Metadata)
	}
}
