package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/auth/oidc"
	"github.com/marcogenualdo/ridegate/internal/cache"
)

var (
	ErrUnknownState = errors.New("unknown or expired state")
	// ErrForeignState is returned when a callback arrives in a browser other
	// than the one that started the authorization request.
	ErrForeignState = errors.New("state belongs to another device")
	// ErrForeignAttempt is returned when a device touches a popup attempt
	// owned by another device.
	ErrForeignAttempt = errors.New("attempt belongs to another device")
)

type Mode string

const (
	ModePopup    Mode = "popup"
	ModeRedirect Mode = "redirect"
)

// State is what the gateway remembers about an authorization request until
// the provider calls back. Device binds the request to the browser that
// started it; Attempt routes a popup result.
type State struct {
	State     string            `json:"state"`
	Nonce     string            `json:"nonce"`
	Verifier  string            `json:"verifier,omitempty"`
	Provider  auth.ProviderKind `json:"provider"`
	Mode      Mode              `json:"mode"`
	Attempt   string            `json:"attempt,omitempty"`
	Device    string            `json:"device"`
	CreatedAt time.Time         `json:"created_at"`
}

func (s *State) AuthRequest() oidc.AuthRequest {
	return oidc.AuthRequest{State: s.State, Nonce: s.Nonce, Verifier: s.Verifier}
}

type StateStore struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewStateStore(c cache.Cache, ttl time.Duration) *StateStore {
	return &StateStore{cache: c, ttl: ttl}
}

func stateKey(state string) string {
	return "oidc:state:" + state
}

func (s *StateStore) Save(ctx context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.cache.Set(ctx, stateKey(st.State), data, s.ttl); err != nil {
		return fmt.Errorf("failed to store state: %w", err)
	}
	return nil
}

// Take returns the state and removes it; a state value is accepted once.
func (s *StateStore) Take(ctx context.Context, state string) (*State, error) {
	if state == "" {
		return nil, ErrUnknownState
	}

	data, err := s.cache.Take(ctx, stateKey(state))
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrUnknownState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &st, nil
}
