package auth

import (
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"toolbox_backend/db"
	"toolbox_backend/webui"
)

// maxNicknameLength bounds the display name.
const maxNicknameLength = 64

// signupRequest is the POST /api/auth/signup body.
type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

// SignupHandler registers a member.
//
// POST /api/auth/signup {"email", "password", "nickname"} creates a
// member with is_approved=false and a full day of image credits, starts a
// session and answers 201 with the profile. A registered email is 400.
func (h *Handler) SignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := webui.DecodeJSON(r, &req); err != nil {
			webui.WriteError(w, h.logger, err)
			return
		}

		email, nickname, err := validateSignup(req)
		if err != nil {
			webui.WriteError(w, h.logger, err)
			return
		}

		hash, err := HashPasswordWithCost(req.Password, h.config.BcryptCost)
		if err != nil {
			webui.WriteError(w, h.logger, fmt.Errorf("failed to hash password: %w", err))
			return
		}

		profile, err := h.profiles.CreateProfile(r.Context(), db.Profile{
			Email:        email,
			Nickname:     nickname,
			PasswordHash: hash,
			Role:         db.RoleMember,
			IsApproved:   false,
			ImageCredits: h.config.DailyCredits,
		})
		if err != nil {
			webui.WriteError(w, h.logger, err)
			return
		}

		h.logger.Info("profile signed up",
			zap.String("profile_id", profile.ID),
			zap.String("ip", webui.ClientIP(r)),
		)

		if err := h.startSession(w, r, profile); err != nil {
			webui.WriteError(w, h.logger, fmt.Errorf("failed to start session: %w", err))
			return
		}
		webui.WriteJSON(w, http.StatusCreated, newProfileResponse(profile))
	}
}

// validateSignup returns the normalized email and the nickname, which
// defaults to the email's local part.
func validateSignup(req signupRequest) (string, string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil || addr.Name != "" {
		return "", "", fmt.Errorf("%w: invalid email address", webui.ErrBadRequest)
	}
	email := db.NormalizeEmail(addr.Address)

	if err := ValidatePassword(req.Password); err != nil {
		return "", "", fmt.Errorf("%w: %v", webui.ErrBadRequest, err)
	}

	nickname := strings.TrimSpace(req.Nickname)
	if nickname == "" {
		nickname, _, _ = strings.Cut(email, "@")
	}
	if len([]rune(nickname)) > maxNicknameLength {
		return "", "", fmt.Errorf("%w: nickname must be at most %d characters", webui.ErrBadRequest, maxNicknameLength)
	}
	return email, nickname, nil
}
