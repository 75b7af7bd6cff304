// The echo server: a GitHub repository tracker with email/password and
// GitHub OAuth authentication. main stays minimal; all wiring lives in
// internal/server.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/echo/internal/config"
	"github.com/sakif/echo/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required; generate one with `openssl rand -hex 32`")
		os.Exit(1)
	}
	if cfg.GitHubClientID == "" {
		logger.Warn("GITHUB_CLIENT_ID not set; GitHub login routes are disabled")
	}

	// Like `mkdir -p` for the database directory.
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(cfg.DBPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
