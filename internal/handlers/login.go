package handlers

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/internal/envdetect"
	"github.com/marcogenualdo/ridegate/internal/fallbackui"
	"github.com/marcogenualdo/ridegate/internal/flow"
	"github.com/marcogenualdo/ridegate/internal/middleware"
)

type LoginHandler struct {
	cfg      config.Config
	signin   *SignIn
	svc      *flow.Service
	csrf     *middleware.CSRFMiddleware
	logger   *slog.Logger
	template *template.Template
}

func NewLoginHandler(cfg config.Config, signin *SignIn, svc *flow.Service, csrf *middleware.CSRFMiddleware, logger *slog.Logger) (*LoginHandler, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	return &LoginHandler{
		cfg:      cfg,
		signin:   signin,
		svc:      svc,
		csrf:     csrf,
		logger:   logger,
		template: tmpl,
	}, nil
}

type LoginPageData struct {
	PageTitle     string
	GradientStart string
	GradientEnd   string
	LogoURL       string

	PageID    string
	CSRFToken string
	Next      string
	HomePath  string

	Environment string
	Category    envdetect.Category
	Strategy    auth.Strategy
	Providers   []ProviderInfo

	Notices            []noticeView
	FallbackEmphasized bool
	ExternalBrowserURL string
	EmailSignInURL     string
	PhoneSignInURL     string
	SupportURL         string

	EnvCookieName string
	EnvHeader     string
	EnvReported   bool
	KnownGlobals  []string
}

type ProviderInfo struct {
	ID      string
	Name    string
	Enabled bool
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	next := SafeNext(q.Get("next"))
	errKind := q.Get("error")

	if _, ok := middleware.GetSession(r.Context()); ok && errKind == "" {
		if next == "" {
			next = h.cfg.SignIn.HomePath
		}
		http.Redirect(w, r, next, http.StatusFound)
		return
	}

	csrfToken, err := h.csrf.GenerateCSRFToken(r.Context())
	if err != nil {
		h.logger.Error("failed to generate CSRF token", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	sig := envdetect.Classify(h.signin.Probe(r))
	capability := auth.SelectStrategy(sig, auth.Google)
	pageURL := h.cfg.Server.BaseURL + r.URL.RequestURI()

	page := fallbackui.NewPage()
	fallbackui.Setup(page, sig, capability, pageURL)
	if errKind != "" {
		fallbackui.ShowError(page, sig, parseErrorKind(errKind), q.Get("code"), pageURL)
	}

	providers := make([]ProviderInfo, 0, len(h.svc.Providers()))
	for _, p := range h.svc.Providers() {
		providers = append(providers, ProviderInfo{
			ID:      string(p.Kind()),
			Name:    p.Name(),
			Enabled: page.ProviderEnabled(p.Kind()),
		})
	}

	logoURL := ""
	if h.cfg.UI.LogoPath != "" {
		logoURL = "/auth/login/logo"
	}

	data := LoginPageData{
		PageTitle:          h.cfg.UI.Title,
		GradientStart:      h.cfg.UI.GradientStart,
		GradientEnd:        h.cfg.UI.GradientEnd,
		LogoURL:            logoURL,
		PageID:             uuid.New().String(),
		CSRFToken:          csrfToken,
		Next:               next,
		HomePath:           h.cfg.SignIn.HomePath,
		Environment:        envdetect.Summary(sig),
		Category:           sig.Category,
		Strategy:           capability.Recommended,
		Providers:          providers,
		Notices:            viewNotices(page),
		FallbackEmphasized: page.FallbackEmphasized,
		ExternalBrowserURL: page.ExternalBrowserURL,
		EmailSignInURL:     h.cfg.UI.EmailSignInURL,
		PhoneSignInURL:     h.cfg.UI.PhoneSignInURL,
		SupportURL:         h.cfg.UI.SupportURL,
		EnvCookieName:      h.cfg.Server.EnvCookieName,
		EnvHeader:          envdetect.EnvHeader,
		EnvReported:        envdetect.Reported(r, h.cfg.Server.EnvCookieName),
		KnownGlobals:       envdetect.KnownGlobals,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.template.ExecuteTemplate(w, "login.html", data); err != nil {
		h.logger.Error("failed to render template", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *LoginHandler) ServeLogo(w http.ResponseWriter, r *http.Request) {
	if h.cfg.UI.LogoPath == "" {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, h.cfg.UI.LogoPath)
}

func parseErrorKind(s string) auth.ErrorKind {
	switch kind := auth.ErrorKind(s); kind {
	case auth.PopupBlocked, auth.UserCancelled, auth.NetworkFailure,
		auth.ProviderMisconfigured, auth.EnvironmentUnsupported:
		return kind
	}
	return auth.Unknown
}
