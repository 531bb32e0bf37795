package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"toolbox_backend/db"
	"toolbox_backend/webui"
)

// memoryProfiles is a map-backed ProfileStore.
type memoryProfiles struct {
	mu       sync.Mutex
	profiles map[string]db.Profile
	rehashed map[string]string
}

func newMemoryProfiles() *memoryProfiles {
	return &memoryProfiles{
		profiles: make(map[string]db.Profile),
		rehashed: make(map[string]string),
	}
}

func (m *memoryProfiles) GetProfile(ctx context.Context, id string) (db.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return db.Profile{}, db.ErrNotFound
	}
	return p, nil
}

func (m *memoryProfiles) GetProfileByEmail(ctx context.Context, email string) (db.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.Email == db.NormalizeEmail(email) {
			return p, nil
		}
	}
	return db.Profile{}, db.ErrNotFound
}

func (m *memoryProfiles) CreateProfile(ctx context.Context, p db.Profile) (db.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Email = db.NormalizeEmail(p.Email)
	for _, existing := range m.profiles {
		if existing.Email == p.Email {
			return db.Profile{}, db.ErrDuplicateEmail
		}
	}
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now()
	m.profiles[p.ID] = p
	return p, nil
}

func (m *memoryProfiles) SetPasswordHash(ctx context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return db.ErrNotFound
	}
	p.PasswordHash = hash
	m.profiles[id] = p
	m.rehashed[id] = hash
	return nil
}

func (m *memoryProfiles) add(t *testing.T, email, password, role string, approved bool) db.Profile {
	t.Helper()
	hash, err := HashPasswordWithCost(password, MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	p, err := m.CreateProfile(context.Background(), db.Profile{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsApproved:   approved,
	})
	if err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	return p
}

// testHandler bundles a Handler with its collaborators.
type testHandler struct {
	*Handler
	profiles *memoryProfiles
	sessions *webui.MemorySessionStore
	limiter  *webui.RateLimiter
}

func newTestHandler(t *testing.T) testHandler {
	t.Helper()

	profiles := newMemoryProfiles()
	sessions := webui.NewMemorySessionStore(time.Hour)
	limiter := webui.NewRateLimiter(3, time.Minute, time.Minute)
	h, err := NewHandler(sessions, limiter, profiles, Config{
		SessionTTL:   time.Hour,
		DailyCredits: 30,
		BcryptCost:   MinCost,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return testHandler{Handler: h, profiles: profiles, sessions: sessions, limiter: limiter}
}

// postJSON sends body to handler from ip.
func postJSON(handler http.HandlerFunc, path, body, ip string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = ip + ":40000"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

// sessionCookie returns the session cookie set on rr, or nil.
func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func (m *memoryProfiles) SetRole(ctx context.Context, id, role string) (db.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return db.Profile{}, db.ErrNotFound
	}
	p.Role = role
	m.profiles[id] = p
	return p, nil
}

func (m *memoryProfiles) SetApproval(ctx context.Context, id string, approved bool) (db.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return db.Profile{}, db.ErrNotFound
	}
	p.IsApproved = approved
	m.profiles[id] = p
	return p, nil
}
