package security

import (
	"net/http"
	"strings"
	"time"

	"github.com/marcogenualdo/ridegate/internal/config"
)

// DeviceCookieMaxAge is the longest lifetime browsers keep a cookie for.
const DeviceCookieMaxAge = 400 * 24 * time.Hour

func sameSite(mode string) http.SameSite {
	switch strings.ToLower(mode) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// NewCookie applies the configured cookie policy to name=value.
func NewCookie(cfg config.ServerConfig, name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   int(maxAge.Seconds()),
		Secure:   cfg.CookieSecure,
		HttpOnly: cfg.CookieHTTPOnly,
		SameSite: sameSite(cfg.CookieSameSite),
	}
}

func CreateSessionCookie(cfg config.ServerConfig, sessionID string, maxAge time.Duration) *http.Cookie {
	return NewCookie(cfg, cfg.CookieName, sessionID, maxAge)
}

func ClearSessionCookie(cfg config.ServerConfig) *http.Cookie {
	cookie := CreateSessionCookie(cfg, "", 0)
	cookie.MaxAge = -1
	return cookie
}

func GetSessionCookie(req *http.Request, cookieName string) (*http.Cookie, error) {
	return req.Cookie(cookieName)
}

// DeviceCookie identifies the browser profile across sign-in attempts. It
// binds provider callbacks to the browser that started them, so it must ride
// the provider's top-level navigation back and is never stricter than Lax.
func DeviceCookie(cfg config.ServerConfig, deviceID string) *http.Cookie {
	cookie := NewCookie(cfg, cfg.DeviceCookieName, deviceID, DeviceCookieMaxAge)
	cookie.HttpOnly = true
	if cookie.SameSite == http.SameSiteStrictMode {
		cookie.SameSite = http.SameSiteLaxMode
	}
	return cookie
}

// ClearEnvCookie drops the environment report the probe script stored.
func ClearEnvCookie(cfg config.ServerConfig) *http.Cookie {
	cookie := NewCookie(cfg, cfg.EnvCookieName, "", 0)
	cookie.MaxAge = -1
	cookie.HttpOnly = false
	return cookie
}
