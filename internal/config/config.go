// Package config loads server configuration from environment variables.
//
// All knobs live in one struct so the composition root (internal/server)
// receives a single value instead of a scatter of os.Getenv calls. Parsing
// and defaulting are delegated to caarlos0/env via struct tags.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime setting for the Echo server.
//
// JWTSecret is required when auth is enabled: it must be a long random
// string (e.g. `openssl rand -hex 32`). GitHub OAuth is optional — leaving
// the client ID empty disables the /api/auth/github routes but keeps
// email/password auth working.
type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"data/echo.db"`

	JWTSecret string `env:"JWT_SECRET"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `env:"GITHUB_CALLBACK_URL"`

	// PublicURL is the externally reachable base URL of this server. GitHub
	// must be able to deliver webhooks to {PublicURL}/api/webhooks/github.
	PublicURL string `env:"PUBLIC_URL"`

	// FrontendURL is where the OAuth callback redirects with tokens in the
	// query string (the client's /auth/callback page).
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`

	// SyncInterval is how often the background runner checks for
	// repositories due for an auto-sync.
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"15m"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = cfg.PublicURL + "/api/auth/github/callback"
	}
	return cfg, nil
}
