package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/cache"
	"github.com/marcogenualdo/ridegate/pkg/security"
)

// handoff is a provider response held between a cross-site form_post and
// the same-site request that finishes it.
type handoff struct {
	Provider auth.ProviderKind `json:"provider"`
	Params   CallbackParams    `json:"params"`
}

const handoffTTL = 2 * time.Minute

func handoffKey(id string) string {
	return "callback:" + id
}

// HoldCallback keeps params for a short while and returns the id that
// releases them. Providers that post their response cross-site arrive
// without the device cookie, so the callback is finished on a follow-up
// navigation that carries it.
func (s *Service) HoldCallback(ctx context.Context, kind auth.ProviderKind, params CallbackParams) (string, error) {
	id, err := security.GenerateRandomString(32)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(handoff{Provider: kind, Params: params})
	if err != nil {
		return "", fmt.Errorf("failed to marshal callback: %w", err)
	}
	if err := s.states.cache.Set(ctx, handoffKey(id), data, handoffTTL); err != nil {
		return "", fmt.Errorf("failed to hold callback: %w", err)
	}
	return id, nil
}

// ReleaseCallback returns the params held under id, once. An unknown id, or
// one held for another provider, is ErrUnknownState.
func (s *Service) ReleaseCallback(ctx context.Context, kind auth.ProviderKind, id string) (CallbackParams, error) {
	if id == "" {
		return CallbackParams{}, ErrUnknownState
	}

	data, err := s.states.cache.Take(ctx, handoffKey(id))
	if errors.Is(err, cache.ErrNotFound) {
		return CallbackParams{}, ErrUnknownState
	}
	if err != nil {
		return CallbackParams{}, fmt.Errorf("failed to release callback: %w", err)
	}

	var h handoff
	if err := json.Unmarshal(data, &h); err != nil {
		return CallbackParams{}, fmt.Errorf("failed to unmarshal callback: %w", err)
	}
	if h.Provider != kind {
		return CallbackParams{}, ErrUnknownState
	}
	return h.Params, nil
}
