package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow(1) || !rl.Allow(1) {
		t.Fatalf("first two requests must pass")
	}
	if rl.Allow(1) {
		t.Fatalf("third request inside the window must be limited")
	}
	if !rl.Allow(2) {
		t.Fatalf("limits are per user")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow(1) {
		t.Fatalf("window passed, request must pass")
	}

	now = now.Add(2 * time.Minute)
	rl.sweep()
	if len(rl.requests) != 0 {
		t.Fatalf("sweep left %d users", len(rl.requests))
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	if got := Truncate("привет", 3); got != "при..." {
		t.Fatalf("Truncate = %q", got)
	}
	if got := Truncate("ok", 3); got != "ok" {
		t.Fatalf("Truncate = %q", got)
	}
}

func TestRecoverFromPanic(t *testing.T) {
	func() {
		defer RecoverFromPanic(42)
		panic("boom")
	}()
}
