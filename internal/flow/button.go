package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/cache"
)

// Buttons tracks the disabled state of each provider button on each rendered
// login page, so a second click while an attempt is running is refused even
// when it reaches another instance.
type Buttons struct {
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewButtons(c cache.Cache, ttl time.Duration, logger *slog.Logger) *Buttons {
	return &Buttons{cache: c, ttl: ttl, logger: logger}
}

func (b *Buttons) Control(ctx context.Context, page string, kind auth.ProviderKind) auth.Control {
	return &button{
		ctx:    context.WithoutCancel(ctx),
		cache:  b.cache,
		key:    "button:" + page + ":" + string(kind),
		ttl:    b.ttl,
		logger: b.logger,
	}
}

type button struct {
	ctx    context.Context
	cache  cache.Cache
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// TryDisable fails open when the cache is unavailable.
func (b *button) TryDisable() bool {
	ok, err := b.cache.SetIfAbsent(b.ctx, b.key, []byte("1"), b.ttl)
	if err != nil {
		b.logger.Warn("failed to disable sign-in button", "key", b.key, "error", err)
		return true
	}
	return ok
}

func (b *button) Enable() {
	if err := b.cache.Delete(b.ctx, b.key); err != nil {
		b.logger.Warn("failed to re-enable sign-in button", "key", b.key, "error", err)
	}
}
