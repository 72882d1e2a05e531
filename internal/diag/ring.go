// Package diag keeps a short, per-device history of environment
// classifications and sign-in decisions for support and debugging.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcogenualdo/ridegate/internal/cache"
	"github.com/marcogenualdo/ridegate/internal/config"
)

const (
	EventClassified        = "classified"
	EventStrategy          = "strategy"
	EventPopupFallback     = "popup_fallback"
	EventRedirectStarted   = "redirect_started"
	EventRedirectCompleted = "redirect_completed"
	EventSignedIn          = "signed_in"
	EventAttemptFailed     = "attempt_failed"
	EventProfileSyncFailed = "profile_sync_failed"
	EventAccountSwitched   = "account_switched"
)

type Entry struct {
	Time      time.Time `json:"time"`
	Event     string    `json:"event"`
	Category  string    `json:"category,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Strategy  string    `json:"strategy,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Signals   []string  `json:"signals,omitempty"`
}

// Ring is a bounded log per device, stored as a cache list under
// diag:<device>. Once full, the oldest entry is evicted. Appends are single
// cache operations, so replicas sharing a cache never drop each other's
// entries.
type Ring struct {
	cache    cache.Cache
	capacity int
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewRing(c cache.Cache, cfg config.DiagnosticsConfig, logger *slog.Logger) *Ring {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 30
	}
	return &Ring{
		cache:    c,
		capacity: capacity,
		ttl:      cfg.TTL,
		logger:   logger,
		now:      time.Now,
	}
}

func key(device string) string {
	return "diag:" + device
}

func (r *Ring) Append(ctx context.Context, device string, e Entry) error {
	if device == "" {
		return nil
	}
	if e.Time.IsZero() {
		e.Time = r.now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}
	if err := r.cache.Append(ctx, key(device), data, r.capacity, r.ttl); err != nil {
		return fmt.Errorf("failed to store diagnostics: %w", err)
	}
	return nil
}

// Entries returns the ring oldest first. Unreadable entries are skipped.
func (r *Ring) Entries(ctx context.Context, device string) ([]Entry, error) {
	values, err := r.cache.List(ctx, key(device))
	if err != nil {
		return nil, fmt.Errorf("failed to load diagnostics: %w", err)
	}

	entries := make([]Entry, 0, len(values))
	for _, data := range values {
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			r.logger.Warn("discarding corrupt diagnostics entry", "device", device, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *Ring) Clear(ctx context.Context, device string) error {
	return r.cache.Delete(ctx, key(device))
}

// For binds the ring to one device.
func (r *Ring) For(device string) *DeviceRecorder {
	return &DeviceRecorder{ring: r, device: device}
}

// DeviceRecorder appends to one device's ring. Append failures are logged
// and otherwise ignored; diagnostics never fail a sign-in.
type DeviceRecorder struct {
	ring   *Ring
	device string
}

func (d *DeviceRecorder) Record(ctx context.Context, e Entry) {
	if err := d.ring.Append(ctx, d.device, e); err != nil {
		d.ring.logger.Warn("failed to record diagnostics", "device", d.device, "event", e.Event, "error", err)
	}
}
