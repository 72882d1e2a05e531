package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/flow"
)

// IdentityVerifier turns an ID token minted by the app's email or phone
// sign-in into an identity.
type IdentityVerifier interface {
	Identity(ctx context.Context, idToken string) (*auth.Identity, error)
}

// TokenHandler exchanges an ID token from the email or phone sign-in pages
// for a gateway session.
type TokenHandler struct {
	signin   *SignIn
	verifier IdentityVerifier
	logger   *slog.Logger
}

func NewTokenHandler(signin *SignIn, verifier IdentityVerifier, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{signin: signin, verifier: verifier, logger: logger}
}

type tokenResponse struct {
	Success bool         `json:"success"`
	Session *sessionView `json:"session"`
	Warning string       `json:"warning,omitempty"`
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !isJSON(r) {
		writeError(w, http.StatusUnsupportedMediaType, "Expected application/json")
		return
	}

	var req struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil || req.IDToken == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := h.verifier.Identity(r.Context(), req.IDToken)
	if err != nil {
		h.logger.Warn("rejected ID token", "error", err)
		writeError(w, http.StatusUnauthorized, "Invalid ID token")
		return
	}

	f, _ := h.signin.Flow(w, r, flow.PageReport{})
	res := f.CompleteSignIn(r.Context(), id)

	writeJSON(w, http.StatusOK, tokenResponse{
		Success: res.Success,
		Session: viewSession(res.Session),
		Warning: res.Warning,
	})
}
