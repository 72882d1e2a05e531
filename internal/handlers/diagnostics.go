package handlers

import (
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/ridegate/internal/diag"
	"github.com/marcogenualdo/ridegate/internal/envdetect"
	"github.com/marcogenualdo/ridegate/internal/middleware"
)

// DiagnosticsHandler shows a device its own sign-in history so support can
// ask for it.
type DiagnosticsHandler struct {
	ring   *diag.Ring
	signin *SignIn
	logger *slog.Logger
}

func NewDiagnosticsHandler(ring *diag.Ring, signin *SignIn, logger *slog.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{ring: ring, signin: signin, logger: logger}
}

type diagnosticsResponse struct {
	Environment string             `json:"environment"`
	Category    envdetect.Category `json:"category"`
	Signals     []string           `json:"signals"`
	Entries     []diag.Entry       `json:"entries"`
}

func (h *DiagnosticsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	device := middleware.GetDevice(r.Context())

	switch r.Method {
	case http.MethodGet:
		entries, err := h.ring.Entries(r.Context(), device)
		if err != nil {
			h.logger.Error("failed to read diagnostics", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if entries == nil {
			entries = []diag.Entry{}
		}

		sig := envdetect.Classify(h.signin.Probe(r))
		signals := sig.Signals
		if signals == nil {
			signals = []string{}
		}
		writeJSON(w, http.StatusOK, diagnosticsResponse{
			Environment: envdetect.Summary(sig),
			Category:    sig.Category,
			Signals:     signals,
			Entries:     entries,
		})

	case http.MethodDelete:
		if err := h.ring.Clear(r.Context(), device); err != nil {
			h.logger.Error("failed to clear diagnostics", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
