package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	session *auth.Session
	err     error
	calls   int
}

func (f *fakeCompleter) CompletePending(http.ResponseWriter, *http.Request) (*auth.Session, error) {
	f.calls++
	return f.session, f.err
}

func (f *fakeCompleter) LoginURL(next string, err error) string {
	u := "/auth/login?next=" + next
	if err != nil {
		u += "&error=" + string(auth.KindOf(err))
	}
	return u
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen := map[string]string{}
		for name := range r.Header {
			if strings.HasPrefix(name, "X-Auth-") {
				seen[name] = r.Header.Get(name)
			}
		}
		json.NewEncoder(w).Encode(seen)
	}))
	t.Cleanup(backend.Close)
	return backend
}

func newTestProxy(t *testing.T, completer RedirectCompleter, protected ...string) *ReverseProxy {
	t.Helper()
	rp, err := NewReverseProxy(config.BackendConfig{
		URL:            newBackend(t).URL,
		Timeout:        5 * time.Second,
		ProtectedPaths: protected,
	}, completer, testLogger())
	require.NoError(t, err)
	return rp
}

func headersSeen(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	var seen map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&seen))
	return seen
}

var rider = &auth.Session{
	ID:          "session-1",
	SubjectID:   "google:123",
	DisplayName: "Road Rider",
	Email:       "roadrider@example.com",
	Provider:    auth.Google,
}

func TestInjectHeadersFromSession(t *testing.T) {
	rp := newTestProxy(t, &fakeCompleter{})

	req := httptest.NewRequest(http.MethodGet, "/rides", nil)
	req.Header.Set("X-Auth-Subject", "forged")
	req.Header.Set("x-auth-admin", "1")
	req = req.WithContext(middleware.WithSession(req.Context(), rider))

	rec := httptest.NewRecorder()
	rp.ServeHTTP(rec, req)

	seen := headersSeen(t, rec)
	assert.Equal(t, "google:123", seen[HeaderSubject])
	assert.Equal(t, "Road Rider", seen[HeaderName])
	assert.Equal(t, "google", seen[HeaderProvider])
	assert.Equal(t, "session-1", seen[HeaderSessionID])
	assert.NotContains(t, seen, "X-Auth-Admin")
	assert.NotContains(t, seen, HeaderAvatar)
}

func TestAnonymousRequestsAreStripped(t *testing.T) {
	rp := newTestProxy(t, &fakeCompleter{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Auth-Subject", "forged")
	rec := httptest.NewRecorder()
	rp.ServeHTTP(rec, req)

	assert.Empty(t, headersSeen(t, rec))
}

func TestNavigationCompletesPendingRedirect(t *testing.T) {
	completer := &fakeCompleter{session: rider}
	rp := newTestProxy(t, completer, "/rides")

	req := httptest.NewRequest(http.MethodGet, "/rides", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	rec := httptest.NewRecorder()
	rp.ServeHTTP(rec, req)

	assert.Equal(t, 1, completer.calls)
	assert.Equal(t, "google:123", headersSeen(t, rec)[HeaderSubject])

	req = httptest.NewRequest(http.MethodGet, "/api/rides", nil)
	req.Header.Set("Sec-Fetch-Mode", "cors")
	rp.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, 1, completer.calls, "XHRs never consume a pending result")
}

func TestFailedPendingRedirectGoesToLogin(t *testing.T) {
	completer := &fakeCompleter{err: auth.NewError(auth.UserCancelled, "access_denied", errors.New("denied"))}
	rp := newTestProxy(t, completer)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	rp.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login?next=/&error=user_cancelled", rec.Header().Get("Location"))
}

func TestProtectedPathsRequireSession(t *testing.T) {
	rp := newTestProxy(t, &fakeCompleter{}, "/account/")

	for path, protected := range map[string]bool{
		"/account":          true,
		"/account/payments": true,
		"/accounting":       false,
		"/":                 false,
	} {
		rec := httptest.NewRecorder()
		rp.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if protected {
			assert.Equal(t, http.StatusFound, rec.Code, path)
			assert.Equal(t, "/auth/login?next="+path, rec.Header().Get("Location"), path)
		} else {
			assert.Equal(t, http.StatusOK, rec.Code, path)
		}
	}
}

func TestBackendDown(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()

	rp, err := NewReverseProxy(config.BackendConfig{URL: url}, &fakeCompleter{}, testLogger())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	rp.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestFormatHeaderValue(t *testing.T) {
	assert.Equal(t, "RoadRider", formatHeaderValue("Road\r\nRider"))
	assert.Equal(t, "Zoë", formatHeaderValue("  Zoë "))
	assert.Len(t, formatHeaderValue(strings.Repeat("a", 2000)), maxHeaderValue)
}
