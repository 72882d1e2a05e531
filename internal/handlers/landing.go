package handlers

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/internal/flow"
)

// LandingHandler is where redirect sign-ins come back to. Loading it
// consumes the pending result for the device.
type LandingHandler struct {
	cfg      config.Config
	signin   *SignIn
	logger   *slog.Logger
	template *template.Template
}

func NewLandingHandler(cfg config.Config, signin *SignIn, logger *slog.Logger) (*LandingHandler, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	return &LandingHandler{
		cfg:      cfg,
		signin:   signin,
		logger:   logger,
		template: tmpl,
	}, nil
}

type landingPageData struct {
	PageTitle     string
	GradientStart string
	GradientEnd   string
	DisplayName   string
	Warning       string
	Continue      string
}

func (h *LandingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f, _ := h.signin.Flow(w, r, flow.PageReport{})
	res, err := f.CompletePendingRedirectOnLoad(r.Context())
	if err != nil {
		http.Redirect(w, r, h.signin.LoginURL("", err), http.StatusSeeOther)
		return
	}
	if res == nil {
		http.Redirect(w, r, h.cfg.SignIn.HomePath, http.StatusSeeOther)
		return
	}

	data := landingPageData{
		PageTitle:     h.cfg.UI.Title,
		GradientStart: h.cfg.UI.GradientStart,
		GradientEnd:   h.cfg.UI.GradientEnd,
		DisplayName:   res.Session.DisplayName,
		Warning:       res.Warning,
		Continue:      h.cfg.SignIn.HomePath,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.template.ExecuteTemplate(w, "landing.html", data); err != nil {
		h.logger.Error("failed to render template", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
