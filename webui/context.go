package webui

import (
	"context"

	"toolbox_backend/core"
	"toolbox_backend/db"
)

type contextKey int

const (
	profileKey contextKey = iota
	sessionKey
)

// WithProfile attaches the signed-in profile to ctx. The auth middleware
// calls it after resolving the session cookie.
func WithProfile(ctx context.Context, p db.Profile) context.Context {
	return context.WithValue(ctx, profileKey, p)
}

// ProfileFromContext returns the signed-in profile, if any.
func ProfileFromContext(ctx context.Context) (db.Profile, bool) {
	p, ok := ctx.Value(profileKey).(db.Profile)
	return p, ok
}

// WithSession attaches the current session to ctx.
func WithSession(ctx context.Context, s core.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the current session, if any.
func SessionFromContext(ctx context.Context) (core.Session, bool) {
	s, ok := ctx.Value(sessionKey).(core.Session)
	return s, ok
}
