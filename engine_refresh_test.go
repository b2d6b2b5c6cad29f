package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tmarlow/authcore/audit"
)

func TestRefreshRotates(t *testing.T) {
	eng, _, clock := newTestEngine(t, testConfig())
	ctx := context.Background()

	login := mustLogin(t, eng, aliceLogin())

	clock.Advance(time.Hour)
	res, err := eng.Refresh(ctx, RefreshRequest{
		RefreshToken: login.RefreshToken,
		IP:           "203.0.113.7",
		UserAgent:    "cli/1.0",
	})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.UserID != "user-alice" {
		t.Fatalf("UserID = %q", res.UserID)
	}
	if res.FamilyID != login.FamilyID {
		t.Fatalf("FamilyID changed across rotation: %q vs %q", res.FamilyID, login.FamilyID)
	}
	if res.RefreshToken == login.RefreshToken {
		t.Fatal("rotation must mint a new token")
	}
	// The expiry slides with each rotation.
	if !res.ExpiresAt.After(login.ExpiresAt) {
		t.Fatalf("ExpiresAt did not slide: %v vs %v", res.ExpiresAt, login.ExpiresAt)
	}
}

func TestRefreshReuseKillsLineage(t *testing.T) {
	cfg := testConfig()
	cfg.Token.RotationGrace = 0
	eng, sink, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	login := mustLogin(t, eng, aliceLogin())
	rotated, err := eng.Refresh(ctx, RefreshRequest{RefreshToken: login.RefreshToken, IP: "203.0.113.7"})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Presenting the already-rotated token is reuse.
	_, err = eng.Refresh(ctx, RefreshRequest{RefreshToken: login.RefreshToken, IP: "198.51.100.9"})
	if !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("err = %v, want ErrSessionRevoked", err)
	}

	// The whole lineage is dead, including the latest token.
	_, err = eng.Refresh(ctx, RefreshRequest{RefreshToken: rotated.RefreshToken, IP: "203.0.113.7"})
	if !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("latest token after reuse: err = %v, want ErrSessionRevoked", err)
	}

	reuse := sink.ByType(audit.EventTokenReuse)
	if len(reuse) != 1 {
		t.Fatalf("token_reuse_detected events = %d, want 1", len(reuse))
	}
	if reuse[0].Severity != audit.SeverityCritical {
		t.Fatalf("severity = %q, want critical", reuse[0].Severity)
	}
	// The event attributes the presenter, not the original holder.
	if reuse[0].IP != "198.51.100.9" {
		t.Fatalf("event IP = %q, want the reusing presenter's", reuse[0].IP)
	}

	snap := eng.MetricsSnapshot()
	if snap["refresh_reuse_detected"] != 2 {
		t.Fatalf("refresh_reuse_detected = %d, want 2", snap["refresh_reuse_detected"])
	}
}

func TestRefreshErrorShapes(t *testing.T) {
	eng, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	// Revoked and plain-invalid must be the same text on the wire.
	if ErrSessionRevoked.Error() != ErrInvalidOrExpiredToken.Error() {
		t.Fatalf("error texts differ: %q vs %q", ErrSessionRevoked, ErrInvalidOrExpiredToken)
	}
	// But they stay distinct identities for errors.Is.
	if errors.Is(ErrSessionRevoked, ErrInvalidOrExpiredToken) {
		t.Fatal("sentinels must not match each other")
	}

	for _, tok := range []string{"", "garbage", "bm90LXJlYWw"} {
		_, err := eng.Refresh(ctx, RefreshRequest{RefreshToken: tok})
		if !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Fatalf("Refresh(%q): err = %v, want ErrInvalidOrExpiredToken", tok, err)
		}
		if errors.Is(err, ErrSessionRevoked) {
			t.Fatalf("Refresh(%q) reported revocation for a malformed token", tok)
		}
	}
}

func TestRefreshGraceAbsorbsRetry(t *testing.T) {
	cfg := testConfig()
	cfg.Token.RotationGrace = 10 * time.Second
	eng, sink, clock := newTestEngine(t, cfg)
	ctx := context.Background()

	login := mustLogin(t, eng, aliceLogin())
	first, err := eng.Refresh(ctx, RefreshRequest{RefreshToken: login.RefreshToken, IP: "203.0.113.7"})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// A client retry with the prior token inside the window succeeds.
	clock.Advance(3 * time.Second)
	retry, err := eng.Refresh(ctx, RefreshRequest{RefreshToken: login.RefreshToken, IP: "203.0.113.7"})
	if err != nil {
		t.Fatalf("grace retry: %v", err)
	}
	if retry.RefreshToken == first.RefreshToken {
		t.Fatal("grace acceptance must still rotate")
	}
	if got := countEvents(sink, audit.EventTokenReuse); got != 0 {
		t.Fatalf("token_reuse_detected events = %d, want 0", got)
	}

	// The retry's rotation orphaned the first branch.
	_, err = eng.Refresh(ctx, RefreshRequest{RefreshToken: first.RefreshToken, IP: "203.0.113.7"})
	if !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("orphaned branch: err = %v, want ErrSessionRevoked", err)
	}
}

func TestRefreshThrottle(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.RefreshMaxRequests = 2
	eng, _, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	req := RefreshRequest{RefreshToken: "garbage", IP: "203.0.113.7"}
	for i := 0; i < 2; i++ {
		if _, err := eng.Refresh(ctx, req); !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}
	_, err := eng.Refresh(ctx, req)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	// A different IP has its own budget.
	other := RefreshRequest{RefreshToken: "garbage", IP: "198.51.100.9"}
	if _, err := eng.Refresh(ctx, other); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("other IP: err = %v, want ErrInvalidOrExpiredToken", err)
	}
}
