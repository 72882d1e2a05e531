package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Backend     BackendConfig     `yaml:"backend"`
	Cache       CacheConfig       `yaml:"cache"`
	Store       StoreConfig       `yaml:"store"`
	Providers   []ProviderConfig  `yaml:"providers"`
	Firebase    FirebaseConfig    `yaml:"firebase"`
	SignIn      SignInConfig      `yaml:"signin"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Logging     LoggingConfig     `yaml:"logging"`
	UI          UIConfig          `yaml:"ui"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	BaseURL          string        `yaml:"base_url"`
	CookieName       string        `yaml:"cookie_name"`
	DeviceCookieName string        `yaml:"device_cookie_name"`
	EnvCookieName    string        `yaml:"env_cookie_name"`
	CookieDomain     string        `yaml:"cookie_domain"`
	CookieSecure     bool          `yaml:"cookie_secure"`
	CookieHTTPOnly   bool          `yaml:"cookie_http_only"`
	CookieSameSite   string        `yaml:"cookie_same_site"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
}

// BackendConfig points at the ride-sharing web app served behind the gateway.
type BackendConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	PreserveHost bool          `yaml:"preserve_host"`

	// ProtectedPaths are path prefixes that send signed-out visitors to the
	// login page instead of the app.
	ProtectedPaths []string `yaml:"protected_paths"`
}

type CacheConfig struct {
	Type  string       `yaml:"type"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
}

// StoreConfig selects the document store holding user records.
type StoreConfig struct {
	Type      string           `yaml:"type"`
	Firestore *FirestoreConfig `yaml:"firestore,omitempty"`
	Postgres  *PostgresConfig  `yaml:"postgres,omitempty"`
}

type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id"`
	Database        string `yaml:"database"`
	Collection      string `yaml:"collection"`
	CredentialsFile string `yaml:"credentials_file"`
}

type PostgresConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

type ProviderConfig struct {
	ID           string       `yaml:"id"`
	Name         string       `yaml:"name"`
	Issuer       string       `yaml:"issuer"`
	ClientID     string       `yaml:"client_id"`
	ClientSecret string       `yaml:"client_secret"`
	Scopes       []string     `yaml:"scopes"`
	PKCE         *bool        `yaml:"pkce"`
	Apple        *AppleConfig `yaml:"apple,omitempty"`
}

// UsesPKCE reports whether the authorization request carries a code challenge.
func (p ProviderConfig) UsesPKCE() bool {
	return p.PKCE == nil || *p.PKCE
}

// AppleConfig holds the key material used to mint Sign in with Apple client
// secrets. When set, ClientSecret is ignored.
type AppleConfig struct {
	TeamID         string        `yaml:"team_id"`
	KeyID          string        `yaml:"key_id"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	SecretTTL      time.Duration `yaml:"secret_ttl"`
}

// FirebaseConfig enables the ID-token exchange for email and phone sign-in.
type FirebaseConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

func (f FirebaseConfig) Enabled() bool {
	return f.ProjectID != ""
}

type SignInConfig struct {
	PopupTimeout time.Duration `yaml:"popup_timeout"`
	StateTTL     time.Duration `yaml:"state_ttl"`
	PageTTL      time.Duration `yaml:"page_ttl"`
	PendingTTL   time.Duration `yaml:"pending_ttl"`
	LandingPath  string        `yaml:"landing_path"`
	HomePath     string        `yaml:"home_path"`
}

type DiagnosticsConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
	Expose   bool          `yaml:"expose"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type UIConfig struct {
	Title          string `yaml:"title"`
	GradientStart  string `yaml:"gradient_start"`
	GradientEnd    string `yaml:"gradient_end"`
	LogoPath       string `yaml:"logo_path"`
	EmailSignInURL string `yaml:"email_signin_url"`
	PhoneSignInURL string `yaml:"phone_signin_url"`
	SupportURL     string `yaml:"support_url"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document and applies defaults and environment secrets.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	if err := cfg.loadSecretsFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load secrets from environment: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() error {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.CookieName == "" {
		c.Server.CookieName = "ridegate-session"
	}
	if c.Server.DeviceCookieName == "" {
		c.Server.DeviceCookieName = "ridegate-device"
	}
	if c.Server.EnvCookieName == "" {
		c.Server.EnvCookieName = "ridegate-env"
	}
	if !c.Server.CookieHTTPOnly {
		c.Server.CookieHTTPOnly = true
	}
	if c.Server.CookieSameSite == "" {
		c.Server.CookieSameSite = "lax"
	}
	if c.Server.SessionTTL == 0 {
		c.Server.SessionTTL = 30 * 24 * time.Hour
	}

	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 30 * time.Second
	}

	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.Type == "redis" && c.Cache.Redis != nil {
		if c.Cache.Redis.PoolSize == 0 {
			c.Cache.Redis.PoolSize = 10
		}
		if c.Cache.Redis.MaxRetries == 0 {
			c.Cache.Redis.MaxRetries = 3
		}
	}

	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Store.Firestore != nil {
		if c.Store.Firestore.Collection == "" {
			c.Store.Firestore.Collection = "users"
		}
		if c.Store.Firestore.Database == "" {
			c.Store.Firestore.Database = "(default)"
		}
	}
	if c.Store.Postgres != nil {
		if c.Store.Postgres.MaxConns == 0 {
			c.Store.Postgres.MaxConns = 20
		}
		if c.Store.Postgres.MinConns == 0 {
			c.Store.Postgres.MinConns = 2
		}
	}

	for i := range c.Providers {
		p := &c.Providers[i]
		p.ID = strings.ToLower(p.ID)
		switch p.ID {
		case "google":
			if p.Name == "" {
				p.Name = "Google"
			}
			if p.Issuer == "" {
				p.Issuer = "https://accounts.google.com"
			}
		case "apple":
			if p.Name == "" {
				p.Name = "Apple"
			}
			if p.Issuer == "" {
				p.Issuer = "https://appleid.apple.com"
			}
			if p.Apple != nil && p.Apple.SecretTTL == 0 {
				p.Apple.SecretTTL = 24 * time.Hour
			}
		}
		if len(p.Scopes) == 0 {
			p.Scopes = []string{"openid", "email", "profile"}
			if p.ID == "apple" {
				p.Scopes = []string{"openid", "email", "name"}
			}
		}
	}

	if c.SignIn.PopupTimeout == 0 {
		c.SignIn.PopupTimeout = 5 * time.Minute
	}
	if c.SignIn.StateTTL == 0 {
		c.SignIn.StateTTL = 10 * time.Minute
	}
	if c.SignIn.PageTTL == 0 {
		c.SignIn.PageTTL = 30 * time.Minute
	}
	if c.SignIn.PendingTTL == 0 {
		c.SignIn.PendingTTL = 10 * time.Minute
	}
	if c.SignIn.LandingPath == "" {
		c.SignIn.LandingPath = "/auth/handler"
	}
	if c.SignIn.HomePath == "" {
		c.SignIn.HomePath = "/index.html"
	}

	if c.Diagnostics.Capacity == 0 {
		c.Diagnostics.Capacity = 30
	}
	if c.Diagnostics.TTL == 0 {
		c.Diagnostics.TTL = 24 * time.Hour
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.UI.Title == "" {
		c.UI.Title = "Sign in to ride"
	}
	if c.UI.GradientStart == "" {
		c.UI.GradientStart = "#667eea"
	}
	if c.UI.GradientEnd == "" {
		c.UI.GradientEnd = "#764ba2"
	}
	if c.UI.EmailSignInURL == "" {
		c.UI.EmailSignInURL = "/login.html#email"
	}
	if c.UI.PhoneSignInURL == "" {
		c.UI.PhoneSignInURL = "/login.html#phone"
	}

	return nil
}

func (c *Config) loadSecretsFromEnv() error {
	for i := range c.Providers {
		provider := &c.Providers[i]
		prefix := strings.ToUpper(provider.ID)

		if envClientID := os.Getenv(prefix + "_CLIENT_ID"); envClientID != "" {
			provider.ClientID = envClientID
		}
		if envClientSecret := os.Getenv(prefix + "_CLIENT_SECRET"); envClientSecret != "" {
			provider.ClientSecret = envClientSecret
		}
	}

	if c.Cache.Type == "redis" && c.Cache.Redis != nil {
		if envPassword := os.Getenv("REDIS_PASSWORD"); envPassword != "" {
			c.Cache.Redis.Password = envPassword
		}
	}

	if c.Store.Type == "postgres" && c.Store.Postgres != nil {
		if envURL := os.Getenv("POSTGRES_URL"); envURL != "" {
			c.Store.Postgres.URL = envURL
		}
	}

	return nil
}

// Provider returns the provider configuration with the given id.
func (c *Config) Provider(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}
