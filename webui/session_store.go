package webui

import (
	"context"
	"errors"
	"sync"
	"time"

	"toolbox_backend/core"
)

// ErrSessionNotFound is returned when a session ID is unknown.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is returned when a session has passed its expiry.
var ErrSessionExpired = errors.New("session expired")

// SessionStore maps session IDs to the profile that signed in.
// MemorySessionStore serves a single instance; RedisSessionStore shares
// sessions between instances.
type SessionStore interface {
	Create(ctx context.Context, profileID string) (core.Session, error)
	Get(ctx context.Context, sessionID string) (core.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// MemorySessionStore keeps sessions in a map. Expired sessions are removed
// lazily on Get and in bulk by Cleanup.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]core.Session
	ttl      time.Duration
}

// NewMemorySessionStore creates a store whose sessions live for ttl.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]core.Session),
		ttl:      ttl,
	}
}

// Create starts a session for profileID.
func (s *MemorySessionStore) Create(ctx context.Context, profileID string) (core.Session, error) {
	id, err := core.GenerateSessionID()
	if err != nil {
		return core.Session{}, err
	}
	session := core.NewSession(id, profileID, s.ttl)

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()
	return session, nil
}

// Get returns the session or ErrSessionNotFound / ErrSessionExpired.
func (s *MemorySessionStore) Get(ctx context.Context, sessionID string) (core.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return core.Session{}, ErrSessionNotFound
	}
	if session.IsExpired() {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		return core.Session{}, ErrSessionExpired
	}
	return session, nil
}

// Delete removes a session. Unknown IDs are ignored.
func (s *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// Cleanup removes expired sessions and returns how many were removed.
func (s *MemorySessionStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if session.IsExpired() {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup every interval until ctx is done.
func (s *MemorySessionStore) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

// Count returns the number of stored sessions, expired ones included.
func (s *MemorySessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var _ SessionStore = (*MemorySessionStore)(nil)
