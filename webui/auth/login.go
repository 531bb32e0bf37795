package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"toolbox_backend/db"
	"toolbox_backend/webui"
)

// ErrInvalidCredentials is returned for an unknown email or wrong password.
var ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", webui.ErrUnauthorized)

// loginRequest is the POST /api/auth/login body.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// profileResponse is returned by login and signup.
type profileResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Nickname   string `json:"nickname"`
	Role       string `json:"role"`
	IsApproved bool   `json:"is_approved"`
}

func newProfileResponse(p db.Profile) profileResponse {
	return profileResponse{
		ID:         p.ID,
		Email:      p.Email,
		Nickname:   p.Nickname,
		Role:       p.Role,
		IsApproved: p.IsApproved,
	}
}

// LoginHandler signs a profile in.
//
// POST /api/auth/login {"email", "password"}:
//  1. Checks the rate limit for the client IP (429 with Retry-After)
//  2. Looks up the profile and verifies the bcrypt hash
//  3. On failure: records the attempt, waits FailedLoginDelay, answers 401
//  4. On success: clears the IP's attempts, starts a session, sets the
//     cookie and returns the profile
//
// Members pending approval can sign in; the toolbox routes refuse them
// with 403 until an admin approves.
func (h *Handler) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := webui.ClientIP(r)
		if !h.checkRateLimit(w, clientIP) {
			return
		}

		var req loginRequest
		if err := webui.DecodeJSON(r, &req); err != nil {
			webui.WriteError(w, h.logger, err)
			return
		}
		if req.Email == "" || req.Password == "" {
			webui.WriteError(w, h.logger, fmt.Errorf("%w: email and password are required", webui.ErrBadRequest))
			return
		}

		profile, err := h.verify(r.Context(), req.Email, req.Password)
		if errors.Is(err, ErrInvalidCredentials) {
			h.rateLimiter.RecordAttempt(clientIP)
			h.logger.Info("login failed",
				zap.String("ip", clientIP),
				zap.Int("attempts", h.rateLimiter.AttemptCount(clientIP)),
			)
			h.failDelay(r.Context())
			webui.WriteError(w, h.logger, err)
			return
		}
		if err != nil {
			webui.WriteError(w, h.logger, err)
			return
		}

		h.rateLimiter.Reset(clientIP)
		if err := h.startSession(w, r, profile); err != nil {
			webui.WriteError(w, h.logger, fmt.Errorf("failed to start session: %w", err))
			return
		}
		h.upgradeHash(r.Context(), profile, req.Password)

		h.logger.Info("login succeeded",
			zap.String("profile_id", profile.ID),
			zap.String("ip", clientIP),
		)
		webui.WriteJSON(w, http.StatusOK, newProfileResponse(profile))
	}
}

// verify returns the profile for email when password matches. Unknown
// emails still pay for one bcrypt comparison.
func (h *Handler) verify(ctx context.Context, email, password string) (db.Profile, error) {
	profile, err := h.profiles.GetProfileByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		VerifyPassword(password, h.dummyHash)
		return db.Profile{}, ErrInvalidCredentials
	}
	if err != nil {
		return db.Profile{}, fmt.Errorf("failed to look up profile: %w", err)
	}
	if err := VerifyPassword(password, profile.PasswordHash); err != nil {
		return db.Profile{}, ErrInvalidCredentials
	}
	return profile, nil
}

// upgradeHash rehashes password when the stored hash is below the
// configured cost. Failures are logged and otherwise ignored.
func (h *Handler) upgradeHash(ctx context.Context, profile db.Profile, password string) {
	if !NeedsRehash(profile.PasswordHash, h.config.BcryptCost) {
		return
	}
	hash, err := HashPasswordWithCost(password, h.config.BcryptCost)
	if err == nil {
		err = h.profiles.SetPasswordHash(ctx, profile.ID, hash)
	}
	if err != nil {
		h.logger.Warn("failed to upgrade password hash", zap.String("profile_id", profile.ID), zap.Error(err))
		return
	}
	h.logger.Info("password hash upgraded", zap.String("profile_id", profile.ID), zap.Int("cost", h.config.BcryptCost))
}
