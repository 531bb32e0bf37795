package core

import (
	"time"
)

// DefaultSessionDuration is used when no TTL is configured.
const DefaultSessionDuration = 24 * time.Hour

// Session is a server-side login session. The ID travels in the session
// cookie; ProfileID names the member it belongs to.
type Session struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSession creates a session for profileID that expires after ttl.
// A non-positive ttl uses DefaultSessionDuration.
func NewSession(id, profileID string, ttl time.Duration) Session {
	if ttl <= 0 {
		ttl = DefaultSessionDuration
	}
	now := time.Now()
	return Session{
		ID:        id,
		ProfileID: profileID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the session is past its expiry.
func (s Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// TimeRemaining is negative once the session has expired.
func (s Session) TimeRemaining() time.Duration {
	return time.Until(s.ExpiresAt)
}
