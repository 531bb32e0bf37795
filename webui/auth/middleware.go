package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"toolbox_backend/core"
	"toolbox_backend/credits"
	"toolbox_backend/db"
	"toolbox_backend/webui"
)

// Defaults for Config.
const (
	// DefaultFailedLoginDelay slows every failed sign-in.
	DefaultFailedLoginDelay = 1 * time.Second

	// DefaultRateLimitBlock is how long an IP stays blocked after
	// core.DefaultMaxAttempts failures.
	DefaultRateLimitBlock = 30 * time.Minute
)

// ProfileStore is the slice of db.Repository the handlers need.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (db.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (db.Profile, error)
	CreateProfile(ctx context.Context, p db.Profile) (db.Profile, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
}

// Config holds the auth settings.
type Config struct {
	// SessionTTL is both the session store TTL and the cookie MaxAge.
	SessionTTL time.Duration

	// SecureCookies sets the Secure flag on the session cookie.
	SecureCookies bool

	// DailyCredits seeds image_credits for new signups.
	DailyCredits int

	// BcryptCost is used for new hashes and to decide rehashing.
	BcryptCost int

	// FailedLoginDelay is slept after every failed sign-in.
	FailedLoginDelay time.Duration
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		SessionTTL:       core.DefaultSessionDuration,
		SecureCookies:    true,
		DailyCredits:     credits.DefaultDailyCredits,
		BcryptCost:       DefaultCost,
		FailedLoginDelay: DefaultFailedLoginDelay,
	}
}

// ConfigFromCore derives a Config from the process configuration.
func ConfigFromCore(cfg *core.Config) Config {
	c := DefaultConfig()
	c.SessionTTL = cfg.SessionTTL
	c.SecureCookies = cfg.SecureCookies
	c.DailyCredits = cfg.DailyImageCredits
	return c
}

// Handler implements webui.AuthProvider.
//
// Usage:
//
//	sessions := webui.NewMemorySessionStore(cfg.SessionTTL)
//	limiter := webui.NewRateLimiter(core.DefaultMaxAttempts, core.DefaultRateLimitWindow, auth.DefaultRateLimitBlock)
//	h, err := auth.NewHandler(sessions, limiter, repo, auth.ConfigFromCore(cfg), logger)
//	server, err := webui.NewServer(serverCfg, webui.Dependencies{Auth: h, ...}, logger)
type Handler struct {
	sessions    webui.SessionStore
	rateLimiter *webui.RateLimiter
	profiles    ProfileStore
	logger      *zap.Logger
	cookie      CookieConfig
	config      Config

	// dummyHash is compared against for unknown emails so the response
	// time does not reveal which emails exist.
	dummyHash string
}

// NewHandler wires the auth handler. Zero config fields fall back to
// DefaultConfig.
func NewHandler(sessions webui.SessionStore, limiter *webui.RateLimiter, profiles ProfileStore, cfg Config, logger *zap.Logger) (*Handler, error) {
	if sessions == nil || profiles == nil {
		return nil, errors.New("auth: session store and profile store are required")
	}
	defaults := DefaultConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaults.SessionTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = defaults.BcryptCost
	}
	if cfg.FailedLoginDelay < 0 {
		cfg.FailedLoginDelay = 0
	}
	if limiter == nil {
		limiter = webui.NewRateLimiter(core.DefaultMaxAttempts, core.DefaultRateLimitWindow, DefaultRateLimitBlock)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dummy, err := HashPasswordWithCost("toolbox-dummy-password", cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	return &Handler{
		sessions:    sessions,
		rateLimiter: limiter,
		profiles:    profiles,
		logger:      logger,
		cookie:      NewCookieConfig(cfg.SessionTTL, cfg.SecureCookies),
		config:      cfg,
		dummyHash:   dummy,
	}, nil
}

// Authenticate resolves the session cookie to a profile and attaches both
// to the request context. Requests without a live session get 401.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := ParseSessionCookie(r, h.cookie)
		if err != nil {
			webui.WriteError(w, h.logger, webui.ErrUnauthorized)
			return
		}

		session, err := h.sessions.Get(r.Context(), sessionID)
		if err != nil {
			if !errors.Is(err, webui.ErrSessionNotFound) && !errors.Is(err, webui.ErrSessionExpired) {
				h.logger.Warn("session lookup failed", zap.String("path", r.URL.Path), zap.Error(err))
			}
			webui.WriteError(w, h.logger, webui.ErrUnauthorized)
			return
		}

		profile, err := h.profiles.GetProfile(r.Context(), session.ProfileID)
		if errors.Is(err, db.ErrNotFound) {
			// profile deleted under a live session
			h.sessions.Delete(r.Context(), sessionID)
			webui.WriteError(w, h.logger, webui.ErrUnauthorized)
			return
		}
		if err != nil {
			webui.WriteError(w, h.logger, err)
			return
		}

		ctx := webui.WithSession(r.Context(), session)
		ctx = webui.WithProfile(ctx, profile)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireApproved answers 403 for members an admin has not approved yet.
// It must run after Authenticate.
func (h *Handler) RequireApproved(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile, ok := webui.ProfileFromContext(r.Context())
		if !ok {
			webui.WriteError(w, h.logger, webui.ErrUnauthorized)
			return
		}
		if !profile.CanUseToolbox() {
			h.logger.Debug("pending profile refused", zap.String("profile_id", profile.ID), zap.String("path", r.URL.Path))
			webui.WriteError(w, h.logger, webui.ErrPendingApproval)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin answers 403 for non-admins. It must run after Authenticate.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile, ok := webui.ProfileFromContext(r.Context())
		if !ok {
			webui.WriteError(w, h.logger, webui.ErrUnauthorized)
			return
		}
		if !profile.IsAdmin() {
			h.logger.Warn("admin route refused",
				zap.String("profile_id", profile.ID),
				zap.String("path", r.URL.Path),
				zap.String("ip", webui.ClientIP(r)),
			)
			webui.WriteError(w, h.logger, webui.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkRateLimit writes 429 with Retry-After and returns false when ip is
// blocked.
func (h *Handler) checkRateLimit(w http.ResponseWriter, ip string) bool {
	allowed, remaining := h.rateLimiter.Allow(ip)
	if allowed {
		return true
	}
	h.logger.Warn("rate limit exceeded",
		zap.String("ip", ip),
		zap.Duration("remaining", remaining),
	)
	w.Header().Set("Retry-After", formatRetryAfter(remaining))
	webui.WriteError(w, h.logger, webui.ErrTooManyAttempts)
	return false
}

// startSession creates a session for profile and sets the cookie.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, profile db.Profile) error {
	session, err := h.sessions.Create(r.Context(), profile.ID)
	if err != nil {
		return err
	}
	cookie, err := NewSessionCookie(session.ID, h.cookie)
	if err != nil {
		return err
	}
	http.SetCookie(w, cookie)

	h.logger.Info("session created",
		zap.String("profile_id", profile.ID),
		zap.String("session_id", sessionPrefix(session.ID)),
		zap.Time("expires_at", session.ExpiresAt),
	)
	return nil
}

// failDelay sleeps FailedLoginDelay unless the request goes away first.
func (h *Handler) failDelay(ctx context.Context) {
	if h.config.FailedLoginDelay <= 0 {
		return
	}
	t := time.NewTimer(h.config.FailedLoginDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// formatRetryAfter formats a duration as seconds for the Retry-After header.
func formatRetryAfter(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

// sessionPrefix logs only the start of a session ID.
func sessionPrefix(id string) string {
	return id[:min(8, len(id))] + "..."
}

var _ webui.AuthProvider = (*Handler)(nil)
