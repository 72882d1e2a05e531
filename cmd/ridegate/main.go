package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/marcogenualdo/ridegate/internal/auth/firebase"
	"github.com/marcogenualdo/ridegate/internal/auth/oidc"
	"github.com/marcogenualdo/ridegate/internal/cache"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/internal/flow"
	"github.com/marcogenualdo/ridegate/internal/handlers"
	"github.com/marcogenualdo/ridegate/internal/server"
	"github.com/marcogenualdo/ridegate/internal/session"
	"github.com/marcogenualdo/ridegate/internal/store"
)

const version = "1.0.0"

const defaultConfigPath = "/etc/ridegate/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	configPathShort := flag.String("c", defaultConfigPath, "path to configuration file (short)")
	showVersion := flag.Bool("version", false, "show version and exit")
	showHelp := flag.Bool("help", false, "show help and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ridegate v%s\n", version)
		os.Exit(0)
	}

	if *showHelp {
		fmt.Println("ridegate - sign-in gateway for the ride web app")
		fmt.Println("\nUsage:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfgPath := *configPath
	if *configPathShort != defaultConfigPath {
		cfgPath = *configPathShort
	}

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting ridegate", "version", version)

	ctx := context.Background()

	cacheInstance, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	logger.Info("cache initialized", "type", cfg.Cache.Type)

	users, err := store.New(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to create user store: %w", err)
	}
	logger.Info("user store initialized", "type", cfg.Store.Type)

	providers := make([]flow.Authorizer, 0, len(cfg.Providers))
	for _, providerCfg := range cfg.Providers {
		callbackURL := strings.TrimSuffix(cfg.Server.BaseURL, "/") + "/auth/" + providerCfg.ID + "/callback"
		provider, err := oidc.NewProvider(ctx, providerCfg, callbackURL)
		if err != nil {
			return fmt.Errorf("failed to create provider %s: %w", providerCfg.ID, err)
		}

		providers = append(providers, provider)
		logger.Info("provider initialized",
			"id", providerCfg.ID,
			"name", provider.Name(),
			"form_post", provider.UsesFormPost(),
		)
	}

	var tokens handlers.IdentityVerifier
	if cfg.Firebase.Enabled() {
		verifier, err := firebase.New(ctx, cfg.Firebase)
		if err != nil {
			return fmt.Errorf("failed to create Firebase verifier: %w", err)
		}
		tokens = verifier
		logger.Info("ID-token exchange enabled", "project_id", cfg.Firebase.ProjectID)
	}

	srv, err := server.New(*cfg, cacheInstance, users, providers, tokens, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	srv.Sessions().Subscribe(func(c session.Change) {
		if c.Session == nil {
			logger.Debug("auth state changed", "subject", c.SubjectID, "signed_in", false)
			return
		}
		logger.Debug("auth state changed", "subject", c.SubjectID, "signed_in", true, "provider", c.Session.Provider)
	})

	return srv.Start()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	out := os.Stdout
	if strings.ToLower(cfg.Output) == "stderr" {
		out = os.Stderr
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}
