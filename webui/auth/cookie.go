package auth

import (
	"errors"
	"net/http"
	"time"
)

// Cookie configuration defaults
const (
	// SessionCookieName names the session cookie.
	SessionCookieName = "toolbox_session"

	// DefaultCookiePath is the path for which the cookie is valid.
	DefaultCookiePath = "/"
)

// ErrNoCookie is returned when the session cookie is absent or empty.
var ErrNoCookie = errors.New("cookie not found")

// ErrEmptySessionID is returned when building a cookie for an empty ID.
var ErrEmptySessionID = errors.New("session ID cannot be empty")

// CookieConfig holds the attributes of the session cookie.
type CookieConfig struct {
	// Name is the cookie name (default: "toolbox_session")
	Name string

	// MaxAge is the cookie lifetime in seconds. It should match the session
	// store TTL.
	MaxAge int

	// Secure restricts the cookie to HTTPS. Turn off only for local
	// development over plain HTTP.
	Secure bool

	// SameSite controls cross-site request behavior.
	SameSite http.SameSite

	// Path restricts the cookie to a URL prefix.
	Path string
}

// NewCookieConfig returns the session cookie settings for a session TTL.
// The cookie is always HttpOnly.
func NewCookieConfig(ttl time.Duration, secure bool) CookieConfig {
	return CookieConfig{
		Name:     SessionCookieName,
		MaxAge:   int(ttl.Seconds()),
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Path:     DefaultCookiePath,
	}
}

// NewSessionCookie builds the cookie carrying sessionID.
func NewSessionCookie(sessionID string, cfg CookieConfig) (*http.Cookie, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	return &http.Cookie{
		Name:     cfg.Name,
		Value:    sessionID,
		Path:     cfg.Path,
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	}, nil
}

// ParseSessionCookie extracts the session ID from r.
func ParseSessionCookie(r *http.Request, cfg CookieConfig) (string, error) {
	cookie, err := r.Cookie(cfg.Name)
	if err != nil || cookie.Value == "" {
		return "", ErrNoCookie
	}
	return cookie.Value, nil
}

// ClearSessionCookie returns a cookie that makes the browser drop the
// session cookie.
func ClearSessionCookie(cfg CookieConfig) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.Name,
		Value:    "",
		Path:     cfg.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	}
}
