package proxy

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/internal/middleware"
)

// RedirectCompleter finishes redirect sign-ins that come back to an app
// page instead of the landing page.
type RedirectCompleter interface {
	CompletePending(w http.ResponseWriter, r *http.Request) (*auth.Session, error)
	LoginURL(next string, err error) string
}

type ReverseProxy struct {
	proxy     *httputil.ReverseProxy
	cfg       config.BackendConfig
	completer RedirectCompleter
	logger    *slog.Logger
}

func NewReverseProxy(cfg config.BackendConfig, completer RedirectCompleter, logger *slog.Logger) (*ReverseProxy, error) {
	backendURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(backendURL)

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		if !cfg.PreserveHost {
			req.Host = backendURL.Host
		}
	}

	if cfg.Timeout > 0 {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = cfg.Timeout
		proxy.Transport = transport
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error",
			"error", err,
			"backend", backendURL.String(),
			"path", r.URL.Path,
		)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}

	return &ReverseProxy{
		proxy:     proxy,
		cfg:       cfg,
		completer: completer,
		logger:    logger,
	}, nil
}

func (rp *ReverseProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.GetSession(r.Context())

	if isNavigation(r) {
		completed, err := rp.completer.CompletePending(w, r)
		if err != nil {
			http.Redirect(w, r, rp.completer.LoginURL(r.URL.RequestURI(), err), http.StatusSeeOther)
			return
		}
		if completed != nil {
			session = completed
			r = r.WithContext(middleware.WithSession(r.Context(), completed))
		}
	}

	if session == nil && rp.protected(r.URL.Path) {
		http.Redirect(w, r, rp.completer.LoginURL(r.URL.RequestURI(), nil), http.StatusFound)
		return
	}

	InjectHeaders(r, session)

	if session != nil {
		rp.logger.Debug("proxying request",
			"path", r.URL.Path,
			"backend", rp.cfg.URL,
			"subject", session.SubjectID,
		)
	}

	rp.proxy.ServeHTTP(w, r)
}

func (rp *ReverseProxy) protected(path string) bool {
	for _, prefix := range rp.cfg.ProtectedPaths {
		prefix = strings.TrimSuffix(prefix, "/")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// isNavigation reports whether r is a top-level page load, the only kind of
// request a redirect sign-in returns on.
func isNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
