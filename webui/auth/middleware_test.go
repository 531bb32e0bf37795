package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"toolbox_backend/db"
	"toolbox_backend/webui"
)

func TestNewHandlerRequiresStores(t *testing.T) {
	if _, err := NewHandler(nil, nil, newMemoryProfiles(), Config{BcryptCost: MinCost}, nil); err == nil {
		t.Error("NewHandler() without a session store should fail")
	}
	if _, err := NewHandler(webui.NewMemorySessionStore(time.Hour), nil, nil, Config{BcryptCost: MinCost}, nil); err == nil {
		t.Error("NewHandler() without a profile store should fail")
	}
}

func TestLogin(t *testing.T) {
	h := newTestHandler(t)
	member := h.profiles.add(t, "member@example.com", "correct-horse", db.RoleMember, true)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCookie bool
	}{
		{"success", `{"email":"member@example.com","password":"correct-horse"}`, http.StatusOK, true},
		{"email is case insensitive", `{"email":" Member@Example.com ","password":"correct-horse"}`, http.StatusOK, true},
		{"wrong password", `{"email":"member@example.com","password":"wrong"}`, http.StatusUnauthorized, false},
		{"unknown email", `{"email":"nobody@example.com","password":"correct-horse"}`, http.StatusUnauthorized, false},
		{"missing password", `{"email":"member@example.com"}`, http.StatusBadRequest, false},
		{"malformed json", `{"email":`, http.StatusBadRequest, false},
		{"unknown field", `{"email":"member@example.com","password":"x","remember":true}`, http.StatusBadRequest, false},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// distinct IPs keep the rate limiter out of the way
			ip := "10.0.0." + string(rune('1'+i))
			rr := postJSON(h.LoginHandler(), "/api/auth/login", tt.body, ip)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			cookie := sessionCookie(rr)
			if (cookie != nil) != tt.wantCookie {
				t.Fatalf("cookie set = %v, want %v", cookie != nil, tt.wantCookie)
			}
			if !tt.wantCookie {
				return
			}

			session, err := h.sessions.Get(context.Background(), cookie.Value)
			if err != nil {
				t.Fatalf("session from cookie: %v", err)
			}
			if session.ProfileID != member.ID {
				t.Errorf("session profile = %q, want %q", session.ProfileID, member.ID)
			}

			var body profileResponse
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.ID != member.ID || body.Email != "member@example.com" || !body.IsApproved {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestLoginRateLimit(t *testing.T) {
	h := newTestHandler(t)
	h.profiles.add(t, "member@example.com", "correct-horse", db.RoleMember, true)
	ip := "192.0.2.10"

	for i := 0; i < 3; i++ {
		rr := postJSON(h.LoginHandler(), "/api/auth/login", `{"email":"member@example.com","password":"nope"}`, ip)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, rr.Code)
		}
	}
	if got := h.limiter.AttemptCount(ip); got != 3 {
		t.Errorf("AttemptCount() = %d, want 3", got)
	}

	// the right password is refused while blocked
	rr := postJSON(h.LoginHandler(), "/api/auth/login", `{"email":"member@example.com","password":"correct-horse"}`, ip)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("blocked status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	// other clients are unaffected
	rr = postJSON(h.LoginHandler(), "/api/auth/login", `{"email":"member@example.com","password":"correct-horse"}`, "192.0.2.11")
	if rr.Code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", rr.Code)
	}
}

func TestLoginResetsAttemptsOnSuccess(t *testing.T) {
	h := newTestHandler(t)
	h.profiles.add(t, "member@example.com", "correct-horse", db.RoleMember, true)
	ip := "192.0.2.20"

	postJSON(h.LoginHandler(), "/api/auth/login", `{"email":"member@example.com","password":"nope"}`, ip)
	postJSON(h.LoginHandler(), "/api/auth/login", `{"email":"member@example.com","password":"correct-horse"}`, ip)

	if got := h.limiter.AttemptCount(ip); got != 0 {
		t.Errorf("AttemptCount() after success = %d, want 0", got)
	}
}

func TestLoginPendingMember(t *testing.T) {
	h := newTestHandler(t)
	h.profiles.add(t, "pending@example.com", "correct-horse", db.RoleMember, false)

	rr := postJSON(h.LoginHandler(), "/api/auth/login", `{"email":"pending@example.com","password":"correct-horse"}`, "192.0.2.30")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body profileResponse
	json.NewDecoder(rr.Body).Decode(&body)
	if body.IsApproved {
		t.Error("is_approved = true, want false")
	}
}

func TestLoginUpgradesHash(t *testing.T) {
	h := newTestHandler(t)
	member := h.profiles.add(t, "member@example.com", "correct-horse", db.RoleMember, true)
	h.config.BcryptCost = MinCost + 1

	rr := postJSON(h.LoginHandler(), "/api/auth/login", `{"email":"member@example.com","password":"correct-horse"}`, "192.0.2.40")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	hash, ok := h.profiles.rehashed[member.ID]
	if !ok {
		t.Fatal("password hash was not upgraded")
	}
	if cost, _ := GetHashCost(hash); cost != MinCost+1 {
		t.Errorf("upgraded cost = %d, want %d", cost, MinCost+1)
	}
	if err := VerifyPassword("correct-horse", hash); err != nil {
		t.Errorf("upgraded hash does not verify: %v", err)
	}
}

func TestSignup(t *testing.T) {
	h := newTestHandler(t)

	rr := postJSON(h.SignupHandler(), "/api/auth/signup",
		`{"email":"New.Member@Example.com","password":"long-enough","nickname":"Newbie"}`, "192.0.2.50")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	if sessionCookie(rr) == nil {
		t.Error("signup should start a session")
	}

	var body profileResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Email != "new.member@example.com" || body.Nickname != "Newbie" {
		t.Errorf("body = %+v", body)
	}
	if body.Role != db.RoleMember || body.IsApproved {
		t.Errorf("role = %q approved = %v, want member pending", body.Role, body.IsApproved)
	}

	stored, err := h.profiles.GetProfile(context.Background(), body.ID)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if stored.ImageCredits != 30 {
		t.Errorf("ImageCredits = %d, want 30", stored.ImageCredits)
	}
	if err := VerifyPassword("long-enough", stored.PasswordHash); err != nil {
		t.Errorf("stored hash does not verify: %v", err)
	}
}

func TestSignupValidation(t *testing.T) {
	h := newTestHandler(t)
	h.profiles.add(t, "taken@example.com", "correct-horse", db.RoleMember, true)

	tests := []struct {
		name string
		body string
	}{
		{"invalid email", `{"email":"not-an-email","password":"long-enough"}`},
		{"display name form", `{"email":"Bob <bob@example.com>","password":"long-enough"}`},
		{"short password", `{"email":"a@example.com","password":"short"}`},
		{"duplicate email", `{"email":"TAKEN@example.com","password":"long-enough"}`},
		{"unknown field", `{"email":"a@example.com","password":"long-enough","role":"admin"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(h.SignupHandler(), "/api/auth/signup", tt.body, "192.0.2.60")
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", rr.Code, rr.Body.String())
			}
			if sessionCookie(rr) != nil {
				t.Error("failed signup should not set a cookie")
			}
		})
	}
}

func TestValidateSignupNicknameDefault(t *testing.T) {
	_, nickname, err := validateSignup(signupRequest{Email: "jo.doe@example.com", Password: "long-enough"})
	if err != nil {
		t.Fatalf("validateSignup() error = %v", err)
	}
	if nickname != "jo.doe" {
		t.Errorf("nickname = %q, want jo.doe", nickname)
	}
}

func TestLogout(t *testing.T) {
	h := newTestHandler(t)
	member := h.profiles.add(t, "member@example.com", "correct-horse", db.RoleMember, true)
	session, _ := h.sessions.Create(context.Background(), member.ID)

	rr := postJSON(h.LogoutHandler(), "/api/auth/logout", "", "192.0.2.70",
		&http.Cookie{Name: SessionCookieName, Value: session.ID})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if _, err := h.sessions.Get(context.Background(), session.ID); err == nil {
		t.Error("session still exists after logout")
	}
	if c := sessionCookie(rr); c == nil || c.MaxAge != -1 {
		t.Error("logout should clear the cookie")
	}

	// idempotent without a cookie
	rr = postJSON(h.LogoutHandler(), "/api/auth/logout", "", "192.0.2.70")
	if rr.Code != http.StatusNoContent {
		t.Errorf("second logout status = %d, want 204", rr.Code)
	}
}

func TestAuthenticate(t *testing.T) {
	h := newTestHandler(t)
	member := h.profiles.add(t, "member@example.com", "correct-horse", db.RoleMember, true)
	live, _ := h.sessions.Create(context.Background(), member.ID)
	orphan, _ := h.sessions.Create(context.Background(), "deleted-profile")

	var seen db.Profile
	protected := h.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = webui.ProfileFromContext(r.Context())
		if _, ok := webui.SessionFromContext(r.Context()); !ok {
			t.Error("session missing from context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		cookie     string
		wantStatus int
	}{
		{"valid session", live.ID, http.StatusOK},
		{"no cookie", "", http.StatusUnauthorized},
		{"unknown session", "does-not-exist", http.StatusUnauthorized},
		{"profile gone", orphan.ID, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = db.Profile{}
			req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			rr := httptest.NewRecorder()
			protected.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && seen.ID != member.ID {
				t.Errorf("profile in context = %q, want %q", seen.ID, member.ID)
			}
		})
	}

	if _, err := h.sessions.Get(context.Background(), orphan.ID); err == nil {
		t.Error("session of a deleted profile should be removed")
	}
}

func TestRequireApprovedAndAdmin(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name         string
		profile      *db.Profile
		wantApproved int
		wantAdmin    int
	}{
		{"admin", &db.Profile{ID: "a", Role: db.RoleAdmin}, http.StatusOK, http.StatusOK},
		{"approved member", &db.Profile{ID: "m", Role: db.RoleMember, IsApproved: true}, http.StatusOK, http.StatusForbidden},
		{"pending member", &db.Profile{ID: "p", Role: db.RoleMember}, http.StatusForbidden, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized, http.StatusUnauthorized},
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, check := range []struct {
				handler http.Handler
				want    int
			}{
				{h.RequireApproved(ok), tt.wantApproved},
				{h.RequireAdmin(ok), tt.wantAdmin},
			} {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				if tt.profile != nil {
					req = req.WithContext(webui.WithProfile(req.Context(), *tt.profile))
				}
				rr := httptest.NewRecorder()
				check.handler.ServeHTTP(rr, req)
				if rr.Code != check.want {
					t.Errorf("status = %d, want %d", rr.Code, check.want)
				}
			}
		})
	}
}

func TestPendingApprovalMessage(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(webui.WithProfile(req.Context(), db.Profile{ID: "p", Role: db.RoleMember}))
	rr := httptest.NewRecorder()
	h.RequireApproved(http.NotFoundHandler()).ServeHTTP(rr, req)

	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["error"] != "pending approval" {
		t.Errorf("error = %q, want pending approval", body["error"])
	}
}

func TestNewHandlerDefaults(t *testing.T) {
	h, err := NewHandler(webui.NewMemorySessionStore(time.Hour), nil, newMemoryProfiles(),
		Config{BcryptCost: MinCost, FailedLoginDelay: -1}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if h.config.SessionTTL != DefaultConfig().SessionTTL {
		t.Errorf("SessionTTL = %v, want default", h.config.SessionTTL)
	}
	if h.config.FailedLoginDelay != 0 {
		t.Errorf("FailedLoginDelay = %v, want 0", h.config.FailedLoginDelay)
	}
	if h.rateLimiter == nil {
		t.Error("a default rate limiter should be created")
	}
}
