package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcogenualdo/ridegate/internal/cache"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/internal/flow"
	"github.com/marcogenualdo/ridegate/internal/store"
)

type HealthHandler struct {
	cfg       config.Config
	cache     cache.Cache
	users     store.UserStore
	svc       *flow.Service
	client    *http.Client
	logger    *slog.Logger
	startTime time.Time
}

func NewHealthHandler(cfg config.Config, cache cache.Cache, users store.UserStore, svc *flow.Service, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:       cfg,
		cache:     cache,
		users:     users,
		svc:       svc,
		client:    &http.Client{Timeout: 3 * time.Second},
		logger:    logger,
		startTime: time.Now(),
	}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Uptime    string            `json:"uptime"`
	Cache     CacheHealth       `json:"cache"`
	Store     StoreHealth       `json:"store"`
	Backend   BackendHealth     `json:"backend"`
	Providers map[string]string `json:"providers"`
}

type CacheHealth struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type StoreHealth struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type BackendHealth struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Uptime:    time.Since(h.startTime).String(),
		Providers: make(map[string]string),
	}

	response.Cache.Type = h.cfg.Cache.Type
	if err := h.cache.Set(ctx, "health:check", []byte("ok"), 1*time.Minute); err != nil {
		response.Cache.Status = "error: " + err.Error()
		response.Status = "degraded"
	} else {
		response.Cache.Status = "connected"
		h.cache.Delete(ctx, "health:check")
	}

	// A lookup of a record that never exists exercises the store round trip.
	response.Store.Type = h.cfg.Store.Type
	if _, err := h.users.ReadUserRecord(ctx, "health:check"); err != nil {
		h.logger.Warn("store health check failed", "error", err)
		response.Store.Status = "unreachable"
		response.Status = "degraded"
	} else {
		response.Store.Status = "connected"
	}

	response.Backend.URL = h.cfg.Backend.URL
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.Backend.URL, nil)
	if err == nil {
		var resp *http.Response
		if resp, err = h.client.Do(req); err == nil {
			resp.Body.Close()
		}
	}
	if err != nil {
		response.Backend.Status = "unreachable"
		response.Status = "degraded"
	} else {
		response.Backend.Status = "reachable"
	}

	for _, p := range h.svc.Providers() {
		response.Providers[string(p.Kind())] = p.Name() + " (oidc)"
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(response)
}
