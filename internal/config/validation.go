package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.validateBackend(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}

	if err := c.validateCache(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.validateStore(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if err := c.validateProviders(); err != nil {
		return fmt.Errorf("providers config: %w", err)
	}

	if err := c.validateSignIn(); err != nil {
		return fmt.Errorf("signin config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	if _, err := url.Parse(c.Server.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}

	sameSite := strings.ToLower(c.Server.CookieSameSite)
	if sameSite != "lax" && sameSite != "strict" && sameSite != "none" {
		return fmt.Errorf("invalid cookie_same_site: %s (must be lax, strict, or none)", c.Server.CookieSameSite)
	}

	if c.Server.SessionTTL < time.Minute {
		return fmt.Errorf("session_ttl must be at least 1 minute")
	}

	names := []string{c.Server.CookieName, c.Server.DeviceCookieName, c.Server.EnvCookieName}
	for i, name := range names {
		if slices.Contains(names[i+1:], name) {
			return fmt.Errorf("cookie names must be distinct: %s", name)
		}
	}

	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("url is required")
	}

	if _, err := url.Parse(c.Backend.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if c.Backend.Timeout < 0 {
		return fmt.Errorf("timeout must be positive")
	}

	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.Type != "memory" && c.Cache.Type != "redis" {
		return fmt.Errorf("invalid type: %s (must be memory or redis)", c.Cache.Type)
	}

	if c.Cache.Type == "redis" {
		if c.Cache.Redis == nil {
			return fmt.Errorf("redis config is required when type is redis")
		}
		if c.Cache.Redis.Address == "" {
			return fmt.Errorf("redis address is required")
		}
	}

	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Type {
	case "memory":
		return nil
	case "firestore":
		if c.Store.Firestore == nil {
			return fmt.Errorf("firestore config is required when type is firestore")
		}
		if c.Store.Firestore.ProjectID == "" {
			return fmt.Errorf("firestore project_id is required")
		}
		return nil
	case "postgres":
		if c.Store.Postgres == nil {
			return fmt.Errorf("postgres config is required when type is postgres")
		}
		if c.Store.Postgres.URL == "" {
			return fmt.Errorf("postgres url is required")
		}
		if c.Store.Postgres.MinConns > c.Store.Postgres.MaxConns {
			return fmt.Errorf("postgres min_conns must not exceed max_conns")
		}
		return nil
	default:
		return fmt.Errorf("invalid type: %s (must be memory, firestore, or postgres)", c.Store.Type)
	}
}

func (c *Config) validateProviders() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}

	ids := make(map[string]bool)
	for i, provider := range c.Providers {
		if provider.ID == "" {
			return fmt.Errorf("provider %d: id is required", i)
		}

		if provider.ID != "google" && provider.ID != "apple" {
			return fmt.Errorf("provider %d: invalid id: %s (must be google or apple)", i, provider.ID)
		}

		if ids[provider.ID] {
			return fmt.Errorf("provider %d: duplicate id: %s", i, provider.ID)
		}
		ids[provider.ID] = true

		if err := validateProvider(provider); err != nil {
			return err
		}
	}

	return nil
}

func validateProvider(cfg ProviderConfig) error {
	if _, err := url.Parse(cfg.Issuer); err != nil {
		return fmt.Errorf("provider %s: invalid issuer URL: %w", cfg.ID, err)
	}

	if cfg.ClientID == "" {
		return fmt.Errorf("provider %s: client_id is required", cfg.ID)
	}

	if cfg.Apple != nil {
		if cfg.ID != "apple" {
			return fmt.Errorf("provider %s: apple config is only valid for the apple provider", cfg.ID)
		}
		if cfg.Apple.TeamID == "" || cfg.Apple.KeyID == "" || cfg.Apple.PrivateKeyPath == "" {
			return fmt.Errorf("provider %s: apple team_id, key_id, and private_key_path are required", cfg.ID)
		}
	} else if cfg.ClientSecret == "" {
		return fmt.Errorf("provider %s: client_secret is required", cfg.ID)
	}

	if !slices.Contains(cfg.Scopes, "openid") {
		return fmt.Errorf("provider %s: 'openid' scope is required", cfg.ID)
	}

	return nil
}

func (c *Config) validateSignIn() error {
	if c.SignIn.PopupTimeout < time.Second {
		return fmt.Errorf("popup_timeout must be at least 1 second")
	}

	if c.SignIn.StateTTL < time.Minute {
		return fmt.Errorf("state_ttl must be at least 1 minute")
	}

	if !strings.HasPrefix(c.SignIn.LandingPath, "/") {
		return fmt.Errorf("landing_path must be an absolute path: %s", c.SignIn.LandingPath)
	}

	if c.Diagnostics.Capacity < 1 {
		return fmt.Errorf("diagnostics capacity must be positive")
	}

	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" {
		return fmt.Errorf("invalid level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}
