package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcogenualdo/ridegate/internal/cache"
	"github.com/marcogenualdo/ridegate/pkg/security"
)

type CSRFMiddleware struct {
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCSRFMiddleware(cache cache.Cache, ttl time.Duration, logger *slog.Logger) *CSRFMiddleware {
	return &CSRFMiddleware{
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// ValidateCSRF checks unsafe requests for a token issued to the same
// device. Tokens stay valid until they expire, because one login page may
// start several attempts.
func (cm *CSRFMiddleware) ValidateCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodDelete {
			token := r.Header.Get("X-CSRF-Token")
			if token == "" {
				token = r.FormValue("csrf_token")
			}

			if token == "" {
				cm.logger.Warn("missing CSRF token", "path", r.URL.Path)
				http.Error(w, "Missing CSRF token", http.StatusForbidden)
				return
			}

			owner, err := cm.cache.Get(r.Context(), "csrf:"+token)
			if errors.Is(err, cache.ErrNotFound) {
				cm.logger.Warn("invalid CSRF token", "path", r.URL.Path)
				http.Error(w, "Invalid or expired CSRF token", http.StatusForbidden)
				return
			}
			if err != nil {
				cm.logger.Error("failed to check CSRF token", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if !security.Equal(string(owner), GetDevice(r.Context())) {
				cm.logger.Warn("CSRF token issued to another device", "path", r.URL.Path)
				http.Error(w, "Invalid or expired CSRF token", http.StatusForbidden)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// GenerateCSRFToken issues a token bound to the request's device.
func (cm *CSRFMiddleware) GenerateCSRFToken(ctx context.Context) (string, error) {
	token, err := security.GenerateCSRFToken()
	if err != nil {
		return "", err
	}

	if err := cm.cache.Set(ctx, "csrf:"+token, []byte(GetDevice(ctx)), cm.ttl); err != nil {
		return "", err
	}

	return token, nil
}
