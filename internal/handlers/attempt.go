package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/internal/envdetect"
	"github.com/marcogenualdo/ridegate/internal/fallbackui"
	"github.com/marcogenualdo/ridegate/internal/flow"
	"github.com/marcogenualdo/ridegate/internal/middleware"
)

// AttemptHandler runs a sign-in button click. The login page script posts
// JSON; without script the provider forms post here directly and each
// outcome becomes a redirect.
type AttemptHandler struct {
	cfg     config.Config
	signin  *SignIn
	svc     *flow.Service
	buttons *flow.Buttons
	logger  *slog.Logger
}

func NewAttemptHandler(cfg config.Config, signin *SignIn, svc *flow.Service, buttons *flow.Buttons, logger *slog.Logger) *AttemptHandler {
	return &AttemptHandler{
		cfg:     cfg,
		signin:  signin,
		svc:     svc,
		buttons: buttons,
		logger:  logger,
	}
}

type attemptRequest struct {
	Provider string `json:"provider"`
	Page     string `json:"page"`
	Attempt  string `json:"attempt"`
	Popup    string `json:"popup"`
	Next     string `json:"next"`
}

type attemptResponse struct {
	Success            bool               `json:"success"`
	Redirecting        bool               `json:"redirecting,omitempty"`
	RedirectURL        string             `json:"redirect_url,omitempty"`
	Strategy           auth.Strategy      `json:"strategy,omitempty"`
	Session            *sessionView       `json:"session,omitempty"`
	Warning            string             `json:"warning,omitempty"`
	Next               string             `json:"next,omitempty"`
	ErrorKind          string             `json:"error_kind,omitempty"`
	Code               string             `json:"code,omitempty"`
	Message            string             `json:"message,omitempty"`
	Notice             *noticeView        `json:"notice,omitempty"`
	ExternalBrowserURL string             `json:"external_browser_url,omitempty"`
	FallbackEmphasized bool               `json:"fallback_emphasized,omitempty"`
	Environment        string             `json:"environment,omitempty"`
	Category           envdetect.Category `json:"category,omitempty"`
}

func isJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

func (h *AttemptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	asJSON := isJSON(r)
	var req attemptRequest
	if asJSON {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		req = attemptRequest{
			Provider: r.FormValue("provider"),
			Page:     r.FormValue("page"),
			Next:     r.FormValue("next"),
		}
	}

	kind, ok := auth.ParseProviderKind(req.Provider)
	if !ok {
		h.reject(w, asJSON, "Invalid provider")
		return
	}
	if _, err := uuid.Parse(req.Page); err != nil {
		h.reject(w, asJSON, "Invalid page")
		return
	}
	if req.Attempt != "" && !flow.ValidAttempt(req.Attempt) {
		h.reject(w, asJSON, "Invalid attempt")
		return
	}

	next := SafeNext(req.Next)
	if next == "" {
		next = h.cfg.SignIn.HomePath
	}

	page := flow.PageReport{Attempt: req.Attempt, PopupBlocked: req.Popup == "blocked"}
	f, browser := h.signin.Flow(w, r, page)
	ctl := h.buttons.Control(r.Context(), req.Page, kind)

	res, err := f.AttemptSignIn(r.Context(), kind, ctl)
	if errors.Is(err, auth.ErrAttemptInFlight) {
		if asJSON {
			writeJSON(w, http.StatusConflict, attemptResponse{
				ErrorKind: "in_flight",
				Message:   "Sign-in is already in progress.",
			})
			return
		}
		http.Error(w, "Sign-in is already in progress", http.StatusConflict)
		return
	}

	if err != nil {
		h.fail(w, r, asJSON, f, req.Next, err)
		return
	}

	if res.Redirecting {
		if asJSON {
			writeJSON(w, http.StatusOK, attemptResponse{
				Success:     true,
				Redirecting: true,
				RedirectURL: browser.RedirectURL(),
				Strategy:    res.Strategy,
			})
			return
		}
		http.Redirect(w, r, browser.RedirectURL(), http.StatusSeeOther)
		return
	}

	if !asJSON {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, attemptResponse{
		Success:  true,
		Strategy: res.Strategy,
		Session:  viewSession(res.Session),
		Warning:  res.Warning,
		Next:     next,
	})
}

func (h *AttemptHandler) reject(w http.ResponseWriter, asJSON bool, message string) {
	if asJSON {
		writeError(w, http.StatusBadRequest, message)
		return
	}
	http.Error(w, message, http.StatusBadRequest)
}

func (h *AttemptHandler) fail(w http.ResponseWriter, r *http.Request, asJSON bool, f *auth.Flow, next string, err error) {
	if !asJSON {
		http.Redirect(w, r, h.signin.LoginURL(next, err), http.StatusSeeOther)
		return
	}

	authErr := auth.AsError(err)
	sig, _ := f.Environment("")
	page := fallbackui.NewPage()
	fallbackui.ShowError(page, sig, authErr.Kind, authErr.Code, h.cfg.Server.BaseURL+h.signin.LoginURL(next, nil))

	res := attemptResponse{
		ErrorKind:          string(authErr.Kind),
		Code:               authErr.Code,
		Message:            auth.UserMessage(authErr.Kind, authErr.Code),
		ExternalBrowserURL: page.ExternalBrowserURL,
		FallbackEmphasized: page.FallbackEmphasized,
		Environment:        envdetect.Summary(sig),
		Category:           sig.Category,
	}
	if notices := viewNotices(page); len(notices) > 0 {
		res.Notice = &notices[0]
	}
	writeJSON(w, http.StatusOK, res)
}

// CancelHandler settles a popup attempt when the page sees the popup window
// was closed before the provider answered.
type CancelHandler struct {
	svc    *flow.Service
	logger *slog.Logger
}

func NewCancelHandler(svc *flow.Service, logger *slog.Logger) *CancelHandler {
	return &CancelHandler{svc: svc, logger: logger}
}

func (h *CancelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Attempt string `json:"attempt"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil || !flow.ValidAttempt(req.Attempt) {
		writeError(w, http.StatusBadRequest, "Invalid attempt")
		return
	}

	err := h.svc.CancelPopup(r.Context(), middleware.GetDevice(r.Context()), req.Attempt)
	if errors.Is(err, flow.ErrForeignAttempt) {
		writeError(w, http.StatusForbidden, "Attempt belongs to another browser")
		return
	}
	if err != nil {
		h.logger.Error("failed to cancel popup attempt", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
