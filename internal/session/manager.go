// Package session keeps the signed-in state of a browser: a server-side
// record under session:<id> and the cookie that names it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/cache"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/pkg/security"
)

// Change is published on every sign-in and sign-out. Session is nil when the
// subject signed out.
type Change struct {
	SubjectID string
	Session   *auth.Session
}

type Manager struct {
	cfg    config.ServerConfig
	cache  cache.Cache
	logger *slog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	subs map[uint64]func(Change)
	next uint64
}

func NewManager(cfg config.ServerConfig, c cache.Cache, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		cache:  c,
		logger: logger,
		now:    time.Now,
		subs:   make(map[uint64]func(Change)),
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

// Writer binds session writes to one request and its response, so Establish
// can replace the session the request carried and set the new cookie.
func (m *Manager) Writer(w http.ResponseWriter, r *http.Request) auth.SessionWriter {
	return &writer{m: m, w: w, r: r}
}

type writer struct {
	m *Manager
	w http.ResponseWriter
	r *http.Request
}

func (sw *writer) Establish(ctx context.Context, s *auth.Session) error {
	var previous string
	if cookie, err := security.GetSessionCookie(sw.r, sw.m.cfg.CookieName); err == nil {
		previous = cookie.Value
	}
	return sw.m.establish(ctx, sw.w, previous, s)
}

// establish writes s as the browser's only session. The record named by
// previous is removed first, so a re-authentication never leaves the
// superseded session usable.
func (m *Manager) establish(ctx context.Context, w http.ResponseWriter, previous string, s *auth.Session) error {
	if previous != "" {
		if err := m.cache.Delete(ctx, sessionKey(previous)); err != nil {
			return fmt.Errorf("failed to delete replaced session: %w", err)
		}
	}

	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	s.ID = uuid.New().String()
	s.ExpiresAt = s.CreatedAt.Add(m.cfg.SessionTTL)

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := s.ExpiresAt.Sub(m.now())
	if err := m.cache.Set(ctx, sessionKey(s.ID), data, ttl); err != nil {
		return fmt.Errorf("failed to cache session: %w", err)
	}

	http.SetCookie(w, security.CreateSessionCookie(m.cfg, s.ID, ttl))
	m.logger.Info("session established",
		"subject", s.SubjectID,
		"provider", s.Provider,
		"session_id", s.ID,
		"replaced", previous != "",
	)

	m.publish(Change{SubjectID: s.SubjectID, Session: s})
	return nil
}

// Current returns the live session named by the request cookie, or nil.
func (m *Manager) Current(r *http.Request) (*auth.Session, error) {
	cookie, err := security.GetSessionCookie(r, m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	return m.Get(r.Context(), cookie.Value)
}

func (m *Manager) Get(ctx context.Context, id string) (*auth.Session, error) {
	data, err := m.cache.Get(ctx, sessionKey(id))
	if errors.Is(err, cache.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s auth.Session
	if err := json.Unmarshal(data, &s); err != nil {
		m.logger.Warn("discarding unreadable session", "session_id", id, "error", err)
		return nil, nil
	}
	if s.Expired(m.now()) {
		return nil, nil
	}
	return &s, nil
}

// Destroy signs the browser out. It is safe to call without a session.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	s, err := m.Current(r)
	if err != nil {
		m.logger.Warn("failed to load session on sign-out", "error", err)
	}

	if cookie, err := security.GetSessionCookie(r, m.cfg.CookieName); err == nil && cookie.Value != "" {
		if err := m.cache.Delete(r.Context(), sessionKey(cookie.Value)); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}
	http.SetCookie(w, security.ClearSessionCookie(m.cfg))

	if s != nil {
		m.logger.Info("session destroyed", "subject", s.SubjectID, "session_id", s.ID)
		m.publish(Change{SubjectID: s.SubjectID})
	}
	return nil
}

// Subscribe registers fn for every later change and returns a function that
// removes it.
func (m *Manager) Subscribe(fn func(Change)) func() {
	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) publish(c Change) {
	m.mu.RLock()
	fns := make([]func(Change), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
