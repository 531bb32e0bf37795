package webui

import (
	"context"
	"testing"
	"time"

	"toolbox_backend/core"
)

func TestRateLimiterAllowsNewIP(t *testing.T) {
	limiter := NewRateLimiter(5, 15*time.Minute, 30*time.Minute)

	allowed, remaining := limiter.Allow("192.168.1.1")
	if !allowed {
		t.Error("Allow() = false for new IP, want true")
	}
	if remaining != 0 {
		t.Errorf("Allow() remaining = %v, want 0", remaining)
	}
}

func TestRateLimiterBlocksAfterMaxAttempts(t *testing.T) {
	limiter := NewRateLimiter(3, 15*time.Minute, 30*time.Minute)
	ip := "192.168.1.100"

	for i := 0; i < 3; i++ {
		if allowed, _ := limiter.Allow(ip); !allowed {
			t.Fatalf("Allow() = false after %d attempts, want true", i)
		}
		limiter.RecordAttempt(ip)
	}

	allowed, remaining := limiter.Allow(ip)
	if allowed {
		t.Error("Allow() = true after max attempts, want false")
	}
	if remaining <= 15*time.Minute {
		t.Errorf("remaining = %v, want the longer block duration", remaining)
	}
	if got := limiter.AttemptCount(ip); got != 3 {
		t.Errorf("AttemptCount() = %d, want 3", got)
	}
}

func TestRateLimiterReset(t *testing.T) {
	limiter := NewRateLimiter(5, 15*time.Minute, 30*time.Minute)
	ip := "192.168.1.200"

	limiter.RecordAttempt(ip)
	limiter.RecordAttempt(ip)
	if got := limiter.AttemptCount(ip); got != 2 {
		t.Fatalf("AttemptCount() = %d, want 2", got)
	}

	limiter.Reset(ip)

	if allowed, _ := limiter.Allow(ip); !allowed {
		t.Error("Allow() = false after Reset, want true")
	}
	if got := limiter.AttemptCount(ip); got != 0 {
		t.Errorf("AttemptCount() after Reset = %d, want 0", got)
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	limiter := NewRateLimiter(5, time.Minute, time.Minute)
	ip := "192.168.1.50"
	limiter.attempts[ip] = core.AttemptRecord{Count: 5, ResetAt: time.Now().Add(-time.Millisecond)}

	if allowed, _ := limiter.Allow(ip); !allowed {
		t.Error("Allow() = false after window expiry, want true")
	}
	if got := limiter.AttemptCount(ip); got != 0 {
		t.Errorf("AttemptCount() after expiry = %d, want 0", got)
	}

	limiter.RecordAttempt(ip)
	if got := limiter.AttemptCount(ip); got != 1 {
		t.Errorf("AttemptCount() after a fresh failure = %d, want 1", got)
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	limiter := NewRateLimiter(0, 0, 0)
	if limiter.maxAttempts != core.DefaultMaxAttempts {
		t.Errorf("maxAttempts = %d, want %d", limiter.maxAttempts, core.DefaultMaxAttempts)
	}
	if limiter.window != core.DefaultRateLimitWindow || limiter.block != core.DefaultRateLimitWindow {
		t.Errorf("window = %v block = %v, want %v", limiter.window, limiter.block, core.DefaultRateLimitWindow)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := NewRateLimiter(5, 15*time.Minute, 30*time.Minute)
	limiter.attempts["expired1"] = core.AttemptRecord{Count: 2, ResetAt: time.Now().Add(-time.Minute)}
	limiter.attempts["expired2"] = core.AttemptRecord{Count: 1, ResetAt: time.Now().Add(-time.Minute)}
	limiter.attempts["valid"] = core.AttemptRecord{Count: 1, ResetAt: time.Now().Add(time.Hour)}

	if removed := limiter.Cleanup(); removed != 2 {
		t.Errorf("Cleanup() = %d, want 2", removed)
	}
	if got := limiter.Count(); got != 1 {
		t.Errorf("Count() after Cleanup = %d, want 1", got)
	}
}

func TestRateLimiterCleanupTicker(t *testing.T) {
	limiter := NewRateLimiter(5, 15*time.Minute, 30*time.Minute)
	limiter.attempts["expired"] = core.AttemptRecord{Count: 1, ResetAt: time.Now().Add(-time.Minute)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter.StartCleanupTicker(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for limiter.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expired record was not cleaned up")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
