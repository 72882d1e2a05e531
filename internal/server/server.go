package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcogenualdo/ridegate/internal/cache"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/internal/flow"
	"github.com/marcogenualdo/ridegate/internal/handlers"
	"github.com/marcogenualdo/ridegate/internal/session"
	"github.com/marcogenualdo/ridegate/internal/store"
)

type Server struct {
	cfg        config.Config
	cache      cache.Cache
	users      store.UserStore
	providers  []flow.Authorizer
	tokens     handlers.IdentityVerifier
	sessions   *session.Manager
	logger     *slog.Logger
	httpServer *http.Server
}

// New assembles the gateway. tokens may be nil, in which case the ID-token
// exchange is not served.
func New(cfg config.Config, cache cache.Cache, users store.UserStore, providers []flow.Authorizer, tokens handlers.IdentityVerifier, logger *slog.Logger) (*Server, error) {
	return &Server{
		cfg:       cfg,
		cache:     cache,
		users:     users,
		providers: providers,
		tokens:    tokens,
		sessions:  session.NewManager(cfg.Server, cache, logger),
		logger:    logger,
	}, nil
}

// Sessions is the session manager, for callers that want to observe
// sign-in and sign-out.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

func (s *Server) Start() error {
	router, err := s.setupRoutes()
	if err != nil {
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	// Popup attempts hold the request open until the popup reports back.
	writeTimeout := 15 * time.Second
	if t := s.cfg.SignIn.PopupTimeout + 15*time.Second; t > writeTimeout {
		writeTimeout = t
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"host", s.cfg.Server.Host,
			"port", s.cfg.Server.Port,
			"base_url", s.cfg.Server.BaseURL,
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig)
		return s.Shutdown()
	}
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("shutting down server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			return err
		}
	}

	if err := s.users.Close(); err != nil {
		s.logger.Error("error closing user store", "error", err)
	}

	if err := s.cache.Close(); err != nil {
		s.logger.Error("error closing cache", "error", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}
