package core

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	rl := NewRateLimiter(3, time.Minute)
	rl.clock = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("peer") {
			t.Fatalf("attempt %d should be allowed", i)
		}
		rl.Commit("peer")
	}
	if rl.Allow("peer") {
		t.Fatal("4th attempt within the window should be denied")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	rl := NewRateLimiter(1, time.Minute)
	rl.clock = func() time.Time { return now }

	if !rl.Allow("peer") {
		t.Fatal("first attempt should be allowed")
	}
	rl.Commit("peer")
	if rl.Allow("peer") {
		t.Fatal("second attempt before the window elapses should be denied")
	}

	now = now.Add(time.Minute + time.Second)
	rl.clock = func() time.Time { return now }
	if !rl.Allow("peer") {
		t.Fatal("attempt after the window elapses should be allowed again")
	}
}

func TestRateLimiter_PerPeerIndependence(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	rl := NewRateLimiter(1, time.Minute)
	rl.clock = func() time.Time { return now }

	rl.Commit("peer-a")
	if !rl.Allow("peer-b") {
		t.Fatal("a different peer's quota must be tracked independently")
	}
}

func TestRateLimiter_AllowDoesNotConsume(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	rl := NewRateLimiter(1, time.Minute)
	rl.clock = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		if !rl.Allow("peer") {
			t.Fatalf("Allow alone must never consume quota (iteration %d)", i)
		}
	}
}
