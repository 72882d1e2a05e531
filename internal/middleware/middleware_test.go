package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/cache"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var serverCfg = config.ServerConfig{
	CookieName:       "ridegate-session",
	DeviceCookieName: "ridegate-device",
	CookieHTTPOnly:   true,
	SessionTTL:       time.Hour,
}

func TestDeviceIssuesAndKeepsCookie(t *testing.T) {
	var seen string
	h := Device(serverCfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetDevice(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "ridegate-device", cookies[0].Name)
	assert.Equal(t, seen, cookies[0].Value)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)

	first := seen
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, first, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "ridegate-device", Value: "<script>"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Len(t, rec.Result().Cookies(), 1)
	assert.NotEqual(t, "<script>", seen)
}

func TestCSRFBoundToDevice(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()
	cm := NewCSRFMiddleware(c, time.Minute, testLogger())

	token, err := cm.GenerateCSRFToken(WithDevice(context.Background(), "device-1"))
	require.NoError(t, err)

	h := cm.ValidateCSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(device, token string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		if token != "" {
			req.Header.Set("X-CSRF-Token", token)
		}
		req = req.WithContext(WithDevice(req.Context(), device))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send("device-1", token))
	assert.Equal(t, http.StatusNoContent, send("device-1", token), "token is reusable")
	assert.Equal(t, http.StatusForbidden, send("device-2", token))
	assert.Equal(t, http.StatusForbidden, send("device-1", ""))
	assert.Equal(t, http.StatusForbidden, send("device-1", "forged"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCSRFFormField(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()
	cm := NewCSRFMiddleware(c, time.Minute, testLogger())
	token, err := cm.GenerateCSRFToken(WithDevice(context.Background(), "d"))
	require.NoError(t, err)

	h := cm.ValidateCSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodPost, "/auth/attempt", strings.NewReader("provider=google&csrf_token="+token))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(WithDevice(req.Context(), "d"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoadSession(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()
	sessions := session.NewManager(serverCfg, c, testLogger())

	rec := httptest.NewRecorder()
	s := auth.NewSession(&auth.Identity{SubjectID: "google:1", Provider: auth.Google}, time.Now())
	require.NoError(t, sessions.Writer(rec, httptest.NewRequest(http.MethodGet, "/", nil)).Establish(context.Background(), s))

	var got *auth.Session
	h := NewAuthMiddleware(sessions, testLogger()).LoadSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetSession(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(rec.Result().Cookies()[0])
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, got)
	assert.Equal(t, "google:1", got.SubjectID)

	got = nil
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Nil(t, got)
}

func TestRecoveryJSON(t *testing.T) {
	h := Recovery(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/attempt", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, false, body["success"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "Internal Server Error", rec.Body.String())
}

func TestLoggingRecordsStatus(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"bytes":5`)

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, buf.String())
}
