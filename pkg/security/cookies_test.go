package security

import (
	"net/http"
	"testing"
	"time"

	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestSessionCookiePolicy(t *testing.T) {
	cfg := config.ServerConfig{
		CookieName:     "ridegate-session",
		CookieDomain:   "rides.example.com",
		CookieSecure:   true,
		CookieHTTPOnly: true,
		CookieSameSite: "Strict",
	}

	c := CreateSessionCookie(cfg, "sid", time.Hour)
	assert.Equal(t, "ridegate-session", c.Name)
	assert.Equal(t, "sid", c.Value)
	assert.Equal(t, 3600, c.MaxAge)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)

	cleared := ClearSessionCookie(cfg)
	assert.Equal(t, -1, cleared.MaxAge)
	assert.Empty(t, cleared.Value)
}

func TestDeviceCookieIsAlwaysHTTPOnly(t *testing.T) {
	c := DeviceCookie(config.ServerConfig{DeviceCookieName: "ridegate-device"}, "dev")
	assert.Equal(t, "ridegate-device", c.Name)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int(DeviceCookieMaxAge.Seconds()), c.MaxAge)
}

func TestDeviceCookieNeverStricterThanLax(t *testing.T) {
	c := DeviceCookie(config.ServerConfig{DeviceCookieName: "ridegate-device", CookieSameSite: "strict"}, "dev")
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	c = DeviceCookie(config.ServerConfig{DeviceCookieName: "ridegate-device", CookieSameSite: "none", CookieSecure: true}, "dev")
	assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
}

func TestGenerateRandomStringIsURLSafe(t *testing.T) {
	a, err := GenerateRandomString(32)
	assert.NoError(t, err)
	b, err := GenerateRandomString(32)
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
	assert.Len(t, a, 43)
}
