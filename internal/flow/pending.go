package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marcogenualdo/ridegate/internal/cache"
)

// Pending parks the outcome of a redirect sign-in under the device that
// started it, until the next page load on that device picks it up.
type Pending struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewPending(c cache.Cache, ttl time.Duration) *Pending {
	return &Pending{cache: c, ttl: ttl}
}

func pendingKey(device string) string {
	return "pending:" + device
}

func (p *Pending) Put(ctx context.Context, device string, o Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal pending result: %w", err)
	}
	if err := p.cache.Set(ctx, pendingKey(device), data, p.ttl); err != nil {
		return fmt.Errorf("failed to store pending result: %w", err)
	}
	return nil
}

// Take consumes the pending outcome. It returns nil when there is none, so a
// second call after a completed redirect is a no-op.
func (p *Pending) Take(ctx context.Context, device string) (*Outcome, error) {
	if device == "" {
		return nil, nil
	}

	data, err := p.cache.Take(ctx, pendingKey(device))
	if errors.Is(err, cache.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending result: %w", err)
	}

	var o Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending result: %w", err)
	}
	return &o, nil
}

// Exists reports whether a redirect result is waiting for device without
// consuming it.
func (p *Pending) Exists(ctx context.Context, device string) (bool, error) {
	if device == "" {
		return false, nil
	}
	return p.cache.Exists(ctx, pendingKey(device))
}
