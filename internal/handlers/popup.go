package handlers

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/internal/flow"
	"github.com/marcogenualdo/ridegate/internal/middleware"
)

type popupPageData struct {
	PageTitle string
	Message   string
	Fallback  string
}

// renderPopupDone shows the page that closes a popup window. Opened as a
// top-level page it navigates to fallback instead.
func renderPopupDone(w http.ResponseWriter, tmpl *template.Template, cfg config.Config, status int, message, fallback string, logger *slog.Logger) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	data := popupPageData{
		PageTitle: cfg.UI.Title,
		Message:   message,
		Fallback:  fallback,
	}
	if err := tmpl.ExecuteTemplate(w, "popup_done.html", data); err != nil {
		logger.Error("failed to render template", "error", err)
	}
}

// PopupHandler starts the authorization request inside the popup window the
// login page opened for an attempt.
type PopupHandler struct {
	cfg      config.Config
	svc      *flow.Service
	signin   *SignIn
	logger   *slog.Logger
	template *template.Template
}

func NewPopupHandler(cfg config.Config, svc *flow.Service, signin *SignIn, logger *slog.Logger) (*PopupHandler, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	return &PopupHandler{
		cfg:      cfg,
		svc:      svc,
		signin:   signin,
		logger:   logger,
		template: tmpl,
	}, nil
}

func (h *PopupHandler) Handle(kind auth.ProviderKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		attempt := r.URL.Query().Get("attempt")
		device := middleware.GetDevice(r.Context())

		authURL, err := h.svc.StartPopup(r.Context(), kind, device, attempt)
		if err != nil {
			h.logger.Warn("failed to start popup sign-in", "provider", kind, "error", err)
			if flow.ValidAttempt(attempt) {
				if ferr := h.svc.FailPopup(r.Context(), device, attempt, err); ferr != nil && !errors.Is(ferr, flow.ErrForeignAttempt) {
					h.logger.Error("failed to settle popup attempt", "error", ferr)
				}
			}
			authErr := auth.AsError(err)
			renderPopupDone(w, h.template, h.cfg, http.StatusOK,
				auth.UserMessage(authErr.Kind, authErr.Code), h.signin.LoginURL("", err), h.logger)
			return
		}

		http.Redirect(w, r, authURL, http.StatusFound)
	}
}
