// Package flow carries a federated sign-in between the requests that make it
// up: the attempt request, the popup window, the provider callback and the
// page load after a redirect.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/cache"
)

// Outcome is a finished provider round trip: an identity or a classified
// failure.
type Outcome struct {
	Identity *auth.Identity `json:"identity,omitempty"`
	Kind     auth.ErrorKind `json:"error_kind,omitempty"`
	Code     string         `json:"code,omitempty"`
	Message  string         `json:"message,omitempty"`
}

func Failure(err error) Outcome {
	authErr := auth.AsError(err)
	return Outcome{Kind: authErr.Kind, Code: authErr.Code, Message: err.Error()}
}

func (o Outcome) Err() error {
	if o.Kind == "" {
		return nil
	}
	return auth.NewError(o.Kind, o.Code, errors.New(o.Message))
}

// Hub hands popup outcomes from the callback request to the attempt request
// waiting on the same attempt id. Outcomes go through the cache so the two
// requests may land on different instances; local waiters are woken
// immediately, remote ones on the next poll.
type Hub struct {
	cache cache.Cache
	ttl   time.Duration
	poll  time.Duration

	mu      sync.Mutex
	waiters map[string]chan struct{}
}

func NewHub(c cache.Cache, ttl time.Duration) *Hub {
	return &Hub{
		cache:   c,
		ttl:     ttl,
		poll:    500 * time.Millisecond,
		waiters: make(map[string]chan struct{}),
	}
}

func popupKey(attempt string) string {
	return "popup:" + attempt
}

func ownerKey(attempt string) string {
	return "attempt:" + attempt
}

// Claim binds attempt to device. The first device to claim an attempt owns
// it; a claim from any other device fails with ErrForeignAttempt.
func (h *Hub) Claim(ctx context.Context, attempt, device string) error {
	if device == "" {
		return ErrForeignAttempt
	}

	stored, err := h.cache.SetIfAbsent(ctx, ownerKey(attempt), []byte(device), h.ttl)
	if err != nil {
		return fmt.Errorf("failed to claim attempt: %w", err)
	}
	if stored {
		return nil
	}

	owner, err := h.cache.Get(ctx, ownerKey(attempt))
	if errors.Is(err, cache.ErrNotFound) {
		return h.Claim(ctx, attempt, device)
	}
	if err != nil {
		return fmt.Errorf("failed to read attempt owner: %w", err)
	}
	if string(owner) != device {
		return ErrForeignAttempt
	}
	return nil
}

func (h *Hub) Deliver(ctx context.Context, attempt string, o Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	// First delivery wins: a cancel racing the callback must not replace it.
	stored, err := h.cache.SetIfAbsent(ctx, popupKey(attempt), data, h.ttl)
	if err != nil {
		return fmt.Errorf("failed to store outcome: %w", err)
	}
	if !stored {
		return nil
	}

	h.mu.Lock()
	if ch, ok := h.waiters[attempt]; ok {
		close(ch)
		delete(h.waiters, attempt)
	}
	h.mu.Unlock()

	return nil
}

// Wait blocks until an outcome for attempt is delivered or ctx ends. The
// outcome is consumed.
func (h *Hub) Wait(ctx context.Context, attempt string) (Outcome, error) {
	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()
	defer h.forget(attempt)

	for {
		wake := h.register(attempt)

		data, err := h.cache.Take(ctx, popupKey(attempt))
		if err == nil {
			var o Outcome
			if err := json.Unmarshal(data, &o); err != nil {
				return Outcome{}, fmt.Errorf("failed to unmarshal outcome: %w", err)
			}
			return o, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			return Outcome{}, fmt.Errorf("failed to read outcome: %w", err)
		}

		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-wake:
		case <-ticker.C:
		}
	}
}

func (h *Hub) register(attempt string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.waiters[attempt]
	if !ok {
		ch = make(chan struct{})
		h.waiters[attempt] = ch
	}
	return ch
}

func (h *Hub) forget(attempt string) {
	h.mu.Lock()
	delete(h.waiters, attempt)
	h.mu.Unlock()
}
