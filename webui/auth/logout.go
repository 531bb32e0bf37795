package auth

import (
	"net/http"

	"go.uber.org/zap"
)

// LogoutHandler ends the current session.
//
// POST /api/auth/logout deletes the session, clears the cookie and
// answers 204. It is idempotent: without a cookie, or with an unknown
// session, it still clears the cookie and answers 204.
func (h *Handler) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessionID, err := ParseSessionCookie(r, h.cookie); err == nil {
			if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
				h.logger.Warn("failed to delete session",
					zap.String("session_id", sessionPrefix(sessionID)),
					zap.Error(err),
				)
			} else {
				h.logger.Info("session destroyed", zap.String("session_id", sessionPrefix(sessionID)))
			}
		}

		http.SetCookie(w, ClearSessionCookie(h.cookie))
		w.WriteHeader(http.StatusNoContent)
	}
}
