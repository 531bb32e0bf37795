package webui

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"toolbox_backend/db"
)

// adminProfile is one row of GET /api/admin/profiles.
type adminProfile struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Nickname     string    `json:"nickname"`
	Role         string    `json:"role"`
	IsApproved   bool      `json:"is_approved"`
	ImageCredits int       `json:"image_credits"`
	CreatedAt    time.Time `json:"created_at"`
}

type adminProfilesResponse struct {
	Profiles []adminProfile `json:"profiles"`
	Count    int            `json:"count"`
}

// approvalRequest is the POST /api/admin/profiles/{id}/approval body.
type approvalRequest struct {
	IsApproved *bool `json:"is_approved"`
}

func toAdminProfile(p db.Profile) adminProfile {
	return adminProfile{
		ID:           p.ID,
		Email:        p.Email,
		Nickname:     p.Nickname,
		Role:         p.Role,
		IsApproved:   p.IsApproved,
		ImageCredits: p.ImageCredits,
		CreatedAt:    p.CreatedAt,
	}
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.deps.Profiles.ListProfiles(r.Context())
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	resp := adminProfilesResponse{Profiles: make([]adminProfile, 0, len(profiles))}
	for _, p := range profiles {
		resp.Profiles = append(resp.Profiles, toAdminProfile(p))
	}
	resp.Count = len(resp.Profiles)
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body approvalRequest
	if err := DecodeJSON(r, &body); err != nil {
		WriteError(w, s.logger, err)
		return
	}
	if body.IsApproved == nil {
		WriteError(w, s.logger, fmt.Errorf("%w: is_approved is required", ErrBadRequest))
		return
	}

	profile, err := s.deps.Profiles.SetApproval(r.Context(), id, *body.IsApproved)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}

	admin, _ := ProfileFromContext(r.Context())
	s.logger.Info("profile approval changed",
		zap.String("profile_id", profile.ID),
		zap.Bool("is_approved", profile.IsApproved),
		zap.String("admin_id", admin.ID))
	WriteJSON(w, http.StatusOK, toAdminProfile(profile))
}
