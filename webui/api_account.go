package webui

import (
	"net/http"
)

// profileResponse is the GET /api/profile reply.
type profileResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Nickname   string `json:"nickname"`
	Role       string `json:"role"`
	IsApproved bool   `json:"is_approved"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := currentProfile(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, profileResponse{
		ID:         profile.ID,
		Email:      profile.Email,
		Nickname:   profile.Nickname,
		Role:       profile.Role,
		IsApproved: profile.IsApproved,
	})
}
