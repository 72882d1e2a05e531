package server

import (
	"net/http"

	"github.com/marcogenualdo/ridegate/internal/diag"
	"github.com/marcogenualdo/ridegate/internal/flow"
	"github.com/marcogenualdo/ridegate/internal/handlers"
	"github.com/marcogenualdo/ridegate/internal/middleware"
	"github.com/marcogenualdo/ridegate/internal/proxy"
)

func (s *Server) setupRoutes() (http.Handler, error) {
	mux := http.NewServeMux()

	csrfMiddleware := middleware.NewCSRFMiddleware(s.cache, s.cfg.SignIn.PageTTL, s.logger)
	authMiddleware := middleware.NewAuthMiddleware(s.sessions, s.logger)

	svc := flow.NewService(s.cfg.SignIn, s.cache, s.providers, s.logger)
	buttons := flow.NewButtons(s.cache, s.cfg.SignIn.PageTTL, s.logger)
	ring := diag.NewRing(s.cache, s.cfg.Diagnostics, s.logger)
	signin := handlers.NewSignIn(s.cfg, svc, s.users, s.sessions, ring, s.logger)

	loginHandler, err := handlers.NewLoginHandler(s.cfg, signin, svc, csrfMiddleware, s.logger)
	if err != nil {
		return nil, err
	}
	popupHandler, err := handlers.NewPopupHandler(s.cfg, svc, signin, s.logger)
	if err != nil {
		return nil, err
	}
	callbackHandler, err := handlers.NewCallbackHandler(s.cfg, svc, signin, s.logger)
	if err != nil {
		return nil, err
	}
	landingHandler, err := handlers.NewLandingHandler(s.cfg, signin, s.logger)
	if err != nil {
		return nil, err
	}

	attemptHandler := handlers.NewAttemptHandler(s.cfg, signin, svc, buttons, s.logger)
	cancelHandler := handlers.NewCancelHandler(svc, s.logger)
	sessionHandler := handlers.NewSessionHandler(csrfMiddleware, s.logger)
	logoutHandler := handlers.NewLogoutHandler(s.sessions, s.logger)
	healthHandler := handlers.NewHealthHandler(s.cfg, s.cache, s.users, svc, s.logger)

	reverseProxy, err := proxy.NewReverseProxy(s.cfg.Backend, signin, s.logger)
	if err != nil {
		return nil, err
	}

	mux.HandleFunc("/auth/login", loginHandler.ServeHTTP)
	mux.HandleFunc("/auth/login/logo", loginHandler.ServeLogo)
	mux.Handle("/auth/attempt", csrfMiddleware.ValidateCSRF(attemptHandler))
	mux.Handle("/auth/attempt/cancel", csrfMiddleware.ValidateCSRF(cancelHandler))

	for _, p := range s.providers {
		kind := p.Kind()
		mux.HandleFunc("/auth/"+string(kind)+"/popup", popupHandler.Handle(kind))
		mux.HandleFunc("/auth/"+string(kind)+"/callback", callbackHandler.Handle(kind))
		mux.HandleFunc(handlers.CompletePath(kind), callbackHandler.HandleComplete(kind))
	}

	mux.Handle(s.cfg.SignIn.LandingPath, landingHandler)
	mux.Handle("/auth/session", sessionHandler)
	mux.Handle("/auth/logout", csrfMiddleware.ValidateCSRF(logoutHandler))

	// The exchange only accepts JSON bodies, which a cross-site form cannot
	// send without a preflight.
	if s.tokens != nil {
		mux.Handle("/auth/token", handlers.NewTokenHandler(signin, s.tokens, s.logger))
	}

	if s.cfg.Diagnostics.Expose {
		diagnosticsHandler := handlers.NewDiagnosticsHandler(ring, signin, s.logger)
		mux.Handle("/auth/diagnostics", csrfMiddleware.ValidateCSRF(diagnosticsHandler))
	}

	mux.Handle("/auth/", http.NotFoundHandler())
	mux.HandleFunc("/health", healthHandler.ServeHTTP)

	mux.Handle("/", reverseProxy)

	handler := middleware.Recovery(s.logger)(
		middleware.Logging(s.logger)(
			addSecurityHeaders(
				middleware.Device(s.cfg.Server)(
					authMiddleware.LoadSession(mux),
				),
			),
		),
	)

	return handler, nil
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// The login page must keep a handle on the popup it opens.
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin-allow-popups")

		next.ServeHTTP(w, r)
	})
}
