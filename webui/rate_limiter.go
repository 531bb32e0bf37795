package webui

import (
	"context"
	"sync"
	"time"

	"toolbox_backend/core"
)

// RateLimiter tracks failed sign-in attempts per client IP.
//
// Each failure increments a counter within window. Reaching maxAttempts
// blocks the IP for block; a successful sign-in clears the record.
type RateLimiter struct {
	mu          sync.RWMutex
	attempts    map[string]core.AttemptRecord
	maxAttempts int
	window      time.Duration
	block       time.Duration
}

// NewRateLimiter creates a limiter. Non-positive values fall back to the
// core defaults; a non-positive block reuses window.
func NewRateLimiter(maxAttempts int, window, block time.Duration) *RateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = core.DefaultMaxAttempts
	}
	if window <= 0 {
		window = core.DefaultRateLimitWindow
	}
	if block <= 0 {
		block = window
	}
	return &RateLimiter{
		attempts:    make(map[string]core.AttemptRecord),
		maxAttempts: maxAttempts,
		window:      window,
		block:       block,
	}
}

// Allow reports whether ip may try to sign in. When blocked it also
// returns how long the block lasts.
func (r *RateLimiter) Allow(ip string) (bool, time.Duration) {
	r.mu.RLock()
	record, ok := r.attempts[ip]
	r.mu.RUnlock()

	if !ok || record.ShouldReset() {
		return true, 0
	}
	if record.IsBlocked(r.maxAttempts) {
		return false, record.TimeUntilReset()
	}
	return true, 0
}

// RecordAttempt counts one failed sign-in for ip.
func (r *RateLimiter) RecordAttempt(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.attempts[ip]
	if !ok {
		r.attempts[ip] = core.NewAttemptRecord(r.window)
		return
	}

	record = record.Increment(r.window)
	if record.Count == r.maxAttempts {
		record.ResetAt = time.Now().Add(r.block)
	}
	r.attempts[ip] = record
}

// Reset clears ip after a successful sign-in.
func (r *RateLimiter) Reset(ip string) {
	r.mu.Lock()
	delete(r.attempts, ip)
	r.mu.Unlock()
}

// Cleanup removes expired records and returns how many were removed.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for ip, record := range r.attempts {
		if record.ShouldReset() {
			delete(r.attempts, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup every interval until ctx is done.
func (r *RateLimiter) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

// Count returns the number of tracked IPs.
func (r *RateLimiter) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.attempts)
}

// AttemptCount returns the live failure count for ip, zero once the
// window has passed.
func (r *RateLimiter) AttemptCount(ip string) int {
	r.mu.RLock()
	record, ok := r.attempts[ip]
	r.mu.RUnlock()

	if !ok || record.ShouldReset() {
		return 0
	}
	return record.Count
}
