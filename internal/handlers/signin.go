package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/internal/diag"
	"github.com/marcogenualdo/ridegate/internal/envdetect"
	"github.com/marcogenualdo/ridegate/internal/flow"
	"github.com/marcogenualdo/ridegate/internal/middleware"
	"github.com/marcogenualdo/ridegate/internal/session"
	"github.com/marcogenualdo/ridegate/internal/store"
)

// SignIn assembles the sign-in flow for the page context behind a request.
type SignIn struct {
	cfg      config.Config
	svc      *flow.Service
	users    store.UserStore
	sessions *session.Manager
	ring     *diag.Ring
	logger   *slog.Logger
}

func NewSignIn(cfg config.Config, svc *flow.Service, users store.UserStore, sessions *session.Manager, ring *diag.Ring, logger *slog.Logger) *SignIn {
	return &SignIn{
		cfg:      cfg,
		svc:      svc,
		users:    users,
		sessions: sessions,
		ring:     ring,
		logger:   logger,
	}
}

func (s *SignIn) Probe(r *http.Request) envdetect.Probe {
	return envdetect.FromRequest(r, s.cfg.Server.EnvCookieName)
}

// Flow returns the flow for r together with the browser adapter it drives.
// Sessions it establishes are written to w.
func (s *SignIn) Flow(w http.ResponseWriter, r *http.Request, page flow.PageReport) (*auth.Flow, *flow.Browser) {
	device := middleware.GetDevice(r.Context())

	var subject string
	if current, ok := middleware.GetSession(r.Context()); ok {
		subject = current.SubjectID
	}

	var recorder auth.Recorder
	if s.ring != nil {
		recorder = s.ring.For(device)
	}

	b := s.svc.Browser(device, subject, page)
	return auth.NewFlow(s.Probe(r), b, s.users, s.sessions.Writer(w, r), recorder, s.logger), b
}

// CompletePending finishes a redirect sign-in waiting for the request's
// device. It returns nil, nil when nothing is pending.
func (s *SignIn) CompletePending(w http.ResponseWriter, r *http.Request) (*auth.Session, error) {
	if !s.svc.HasPending(r.Context(), middleware.GetDevice(r.Context())) {
		return nil, nil
	}

	f, _ := s.Flow(w, r, flow.PageReport{})
	res, err := f.CompletePendingRedirectOnLoad(r.Context())
	if err != nil || res == nil {
		return nil, err
	}
	return res.Session, nil
}

// LoginURL is the login page, carrying an error to display and the page to
// return to.
func (s *SignIn) LoginURL(next string, err error) string {
	v := url.Values{}
	if next = SafeNext(next); next != "" {
		v.Set("next", next)
	}
	if err != nil {
		authErr := auth.AsError(err)
		v.Set("error", string(authErr.Kind))
		if authErr.Code != "" {
			v.Set("code", authErr.Code)
		}
	}

	u := "/auth/login"
	if len(v) > 0 {
		u += "?" + v.Encode()
	}
	return u
}

// SafeNext keeps next only when it is a path on this site.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return ""
	}
	if u, err := url.Parse(next); err != nil || u.Host != "" || u.Scheme != "" {
		return ""
	}
	return next
}
