package handlers

import (
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/ridegate/internal/middleware"
)

// SessionHandler reports who is signed in. The app shell uses it to draw
// the header and to pick up a CSRF token for sign-out.
type SessionHandler struct {
	csrf   *middleware.CSRFMiddleware
	logger *slog.Logger
}

func NewSessionHandler(csrf *middleware.CSRFMiddleware, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{csrf: csrf, logger: logger}
}

type sessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	Session       *sessionView `json:"session,omitempty"`
	CSRFToken     string       `json:"csrf_token,omitempty"`
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s, ok := middleware.GetSession(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}

	token, err := h.csrf.GenerateCSRFToken(r.Context())
	if err != nil {
		h.logger.Error("failed to generate CSRF token", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		Session:       viewSession(s),
		CSRFToken:     token,
	})
}
