package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/pkg/security"
)

const DeviceContextKey contextKey = "device"

// Device makes sure every browser carries a device id cookie and exposes
// the id to handlers.
func Device(cfg config.ServerConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var device string
			if cookie, err := r.Cookie(cfg.DeviceCookieName); err == nil {
				if id, err := uuid.Parse(cookie.Value); err == nil {
					device = id.String()
				}
			}
			if device == "" {
				device = uuid.New().String()
				http.SetCookie(w, security.DeviceCookie(cfg, device))
			}

			ctx := context.WithValue(r.Context(), DeviceContextKey, device)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetDevice(ctx context.Context) string {
	device, _ := ctx.Value(DeviceContextKey).(string)
	return device
}

// WithDevice returns ctx carrying device.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, DeviceContextKey, device)
}
