package core

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestNewSession(t *testing.T) {
	before := time.Now()
	s := NewSession("sid", "profile-1", time.Hour)
	after := time.Now()

	if s.ID != "sid" || s.ProfileID != "profile-1" {
		t.Errorf("NewSession() = %+v, want ID sid and ProfileID profile-1", s)
	}
	if s.CreatedAt.Before(before) || s.CreatedAt.After(after) {
		t.Errorf("CreatedAt = %v, want between %v and %v", s.CreatedAt, before, after)
	}
	if !s.ExpiresAt.Equal(s.CreatedAt.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", s.ExpiresAt, s.CreatedAt.Add(time.Hour))
	}
}

func TestNewSession_DefaultTTL(t *testing.T) {
	s := NewSession("sid", "p", 0)
	if got := s.ExpiresAt.Sub(s.CreatedAt); got != DefaultSessionDuration {
		t.Errorf("ttl = %v, want %v", got, DefaultSessionDuration)
	}
}

func TestSession_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"future", time.Now().Add(time.Hour), false},
		{"past", time.Now().Add(-time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Session{ID: "x", ExpiresAt: tt.expiresAt}
			if got := s.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
			if tt.want && s.TimeRemaining() >= 0 {
				t.Errorf("TimeRemaining() = %v, want negative", s.TimeRemaining())
			}
		})
	}
}

func TestGenerateSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateSessionID()
		if err != nil {
			t.Fatalf("GenerateSessionID() error = %v", err)
		}
		if len(id) != 43 {
			t.Fatalf("len(id) = %d, want 43", len(id))
		}
		raw, err := base64.RawURLEncoding.DecodeString(id)
		if err != nil {
			t.Fatalf("id %q is not base64url: %v", id, err)
		}
		if len(raw) != SessionIDLength {
			t.Fatalf("decoded length = %d, want %d", len(raw), SessionIDLength)
		}
		if seen[id] {
			t.Fatalf("duplicate session ID %q", id)
		}
		seen[id] = true
	}
}
