package handlers

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/internal/flow"
	"github.com/marcogenualdo/ridegate/internal/middleware"
)

// CallbackHandler receives the provider's answer. Google returns with a
// query string and the device cookie. Apple posts a form from its own origin,
// where Lax cookies are not sent, so that answer is held and finished on a
// same-site GET to the provider's complete path.
type CallbackHandler struct {
	cfg      config.Config
	svc      *flow.Service
	signin   *SignIn
	logger   *slog.Logger
	template *template.Template
}

func NewCallbackHandler(cfg config.Config, svc *flow.Service, signin *SignIn, logger *slog.Logger) (*CallbackHandler, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	return &CallbackHandler{
		cfg:      cfg,
		svc:      svc,
		signin:   signin,
		logger:   logger,
		template: tmpl,
	}, nil
}

// CompletePath is where a held callback for kind is finished.
func CompletePath(kind auth.ProviderKind) string {
	return "/auth/" + string(kind) + "/complete"
}

func (h *CallbackHandler) Handle(kind auth.ProviderKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		params := flow.CallbackParams{
			State:            r.FormValue("state"),
			Code:             r.FormValue("code"),
			User:             r.FormValue("user"),
			Error:            r.FormValue("error"),
			ErrorDescription: r.FormValue("error_description"),
		}

		if r.Method == http.MethodPost {
			id, err := h.svc.HoldCallback(r.Context(), kind, params)
			if err != nil {
				h.logger.Error("failed to hold callback", "provider", kind, "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			http.Redirect(w, r, CompletePath(kind)+"?hop="+url.QueryEscape(id), http.StatusSeeOther)
			return
		}

		h.complete(w, r, kind, params)
	}
}

// HandleComplete finishes a callback held by a form_post response.
func (h *CallbackHandler) HandleComplete(kind auth.ProviderKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		params, err := h.svc.ReleaseCallback(r.Context(), kind, r.URL.Query().Get("hop"))
		if errors.Is(err, flow.ErrUnknownState) {
			h.expired(w, kind)
			return
		}
		if err != nil {
			h.logger.Error("failed to release callback", "provider", kind, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		h.complete(w, r, kind, params)
	}
}

func (h *CallbackHandler) complete(w http.ResponseWriter, r *http.Request, kind auth.ProviderKind, params flow.CallbackParams) {
	st, err := h.svc.Complete(r.Context(), kind, middleware.GetDevice(r.Context()), params)
	switch {
	case errors.Is(err, flow.ErrUnknownState):
		h.expired(w, kind)
		return
	case errors.Is(err, flow.ErrForeignState):
		foreign := auth.Errorf(auth.Unknown, "foreign_state", "sign-in started in another browser")
		renderPopupDone(w, h.template, h.cfg, http.StatusBadRequest,
			"This sign-in was started in another browser. Please start again here.", h.signin.LoginURL("", foreign), h.logger)
		return
	case err != nil:
		h.logger.Error("failed to complete callback", "provider", kind, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if st.Mode == flow.ModePopup {
		renderPopupDone(w, h.template, h.cfg, http.StatusOK,
			"You can close this window.", h.cfg.SignIn.LandingPath, h.logger)
		return
	}

	http.Redirect(w, r, h.cfg.SignIn.LandingPath, http.StatusSeeOther)
}

func (h *CallbackHandler) expired(w http.ResponseWriter, kind auth.ProviderKind) {
	h.logger.Warn("callback with unknown state", "provider", kind)
	expired := auth.Errorf(auth.Unknown, "state_expired", "sign-in request expired")
	renderPopupDone(w, h.template, h.cfg, http.StatusBadRequest,
		"This sign-in request has expired. Please try again.", h.signin.LoginURL("", expired), h.logger)
}
