package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/marcogenualdo/ridegate/internal/session"
)

type LogoutHandler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

func NewLogoutHandler(sessions *session.Manager, logger *slog.Logger) *LogoutHandler {
	return &LogoutHandler{
		sessions: sessions,
		logger:   logger,
	}
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.sessions.Destroy(w, r); err != nil {
		h.logger.Warn("failed to delete session from cache", "error", err)
	}

	h.logger.Info("user logged out")

	if isJSON(r) || strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}
