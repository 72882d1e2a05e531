package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/session"
)

type contextKey string

const SessionContextKey contextKey = "session"

type AuthMiddleware struct {
	sessions *session.Manager
	logger   *slog.Logger
}

func NewAuthMiddleware(sessions *session.Manager, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		logger:   logger,
	}
}

// LoadSession attaches the browser's session, if any, to the request
// context. Requests without one pass through; pages decide for themselves.
func (am *AuthMiddleware) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := am.sessions.Current(r)
		if err != nil {
			am.logger.Warn("failed to load session", "path", r.URL.Path, "error", err)
		}
		if s == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetSession(ctx context.Context) (*auth.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(*auth.Session)
	return s, ok
}

// WithSession returns ctx carrying s.
func WithSession(ctx context.Context, s *auth.Session) context.Context {
	return context.WithValue(ctx, SessionContextKey, s)
}
