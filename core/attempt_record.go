package core

import (
	"time"
)

// Login rate limiting defaults.
const (
	DefaultRateLimitWindow = 15 * time.Minute
	DefaultMaxAttempts     = 5
)

// AttemptRecord counts failed login attempts from one client within a
// window.
type AttemptRecord struct {
	Count   int
	ResetAt time.Time
}

// NewAttemptRecord starts a record with one attempt and the given window.
// A non-positive window uses DefaultRateLimitWindow.
func NewAttemptRecord(window time.Duration) AttemptRecord {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return AttemptRecord{Count: 1, ResetAt: time.Now().Add(window)}
}

// ShouldReset reports whether the window has elapsed.
func (a AttemptRecord) ShouldReset() bool {
	return time.Now().After(a.ResetAt)
}

// IsBlocked reports whether Count has reached maxAttempts.
func (a AttemptRecord) IsBlocked(maxAttempts int) bool {
	return a.Count >= maxAttempts
}

// TimeUntilReset is zero once the window has elapsed.
func (a AttemptRecord) TimeUntilReset() time.Duration {
	if d := time.Until(a.ResetAt); d > 0 {
		return d
	}
	return 0
}

// Increment returns the record with one more attempt, or a fresh record
// if the window has elapsed.
func (a AttemptRecord) Increment(window time.Duration) AttemptRecord {
	if a.ShouldReset() {
		return NewAttemptRecord(window)
	}
	return AttemptRecord{Count: a.Count + 1, ResetAt: a.ResetAt}
}
