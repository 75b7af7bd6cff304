// Package server is the composition root: it wires config, storage,
// services, handlers, and middleware into a running HTTP server.
//
// Keeping the wiring out of main.go makes the whole dependency graph
// testable and keeps main down to "load config, start server".
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/echo/internal/auth"
	"github.com/sakif/echo/internal/config"
	"github.com/sakif/echo/internal/github"
	"github.com/sakif/echo/internal/handler"
	"github.com/sakif/echo/internal/middleware"
	sqliteRepo "github.com/sakif/echo/internal/repository/sqlite"
	"github.com/sakif/echo/internal/service"
	"github.com/sakif/echo/internal/syncer"
)

// Server owns the router, the database connection, and the background sync
// runner. The DB is closed during graceful shutdown.
type Server struct {
	router  *chi.Mux
	cfg     config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	runner  *syncer.Runner
	limiter *middleware.RateLimiter
}

// New assembles the full dependency graph.
//
// Each layer only receives what it needs: services get repository
// interfaces, handlers get services. Nothing below the handler layer knows
// about HTTP.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	githubFactory := func(token string) service.GitHubAPI {
		return github.NewClient(token)
	}

	authSvc := service.NewAuthService(db.Users(), db.Sessions(), tokens, passwords, logger)
	repoSvc := service.NewRepoService(db.Repos(), db.Users(), db.Webhooks(), githubFactory, logger)

	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		logger:  logger,
		db:      db,
		runner:  syncer.New(db.Repos(), db.Sessions(), repoSvc, githubFactory, cfg.SyncInterval, logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimitPerMinute),
	}

	s.setupRoutes(tokens, authSvc, repoSvc)
	return s, nil
}

// setupRoutes configures middleware and the route tree.
//
// Middleware order: request ID and real IP first (so later middleware sees
// them), then logging, panic recovery, and the rate limiter. Auth is applied
// per route group, not globally, because the OAuth redirects and the webhook
// ingest endpoint must stay reachable without a Bearer token.
func (s *Server) setupRoutes(tokens *auth.TokenService, authSvc *service.AuthService, repoSvc *service.RepoService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	// OptionalAuth runs before the rate limiter so authenticated clients are
	// budgeted per user instead of per IP. It never rejects; RequireAuth on
	// the protected groups does the enforcement.
	s.router.Use(auth.OptionalAuth(tokens))
	s.router.Use(s.limiter.Middleware)

	githubProvider := auth.NewGitHubProvider(s.cfg.GitHubClientID, s.cfg.GitHubClientSecret, s.cfg.GitHubCallbackURL)

	authHandler := handler.NewAuthHandler(authSvc, githubProvider, s.cfg.FrontendURL, s.logger)
	repoHandler := handler.NewRepoHandler(repoSvc, s.cfg.PublicURL+"/api/webhooks/github", s.logger)
	webhookHandler := handler.NewWebhookHandler(repoSvc, s.logger)

	requireAuth := auth.RequireAuth(tokens)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.HandleSignup)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/refresh", authHandler.HandleRefresh)

			if s.cfg.GitHubClientID != "" {
				r.Get("/github", authHandler.HandleGitHubLogin)
				r.Get("/github/callback", authHandler.HandleGitHubCallback)
			}

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/logout", authHandler.HandleLogout)
				r.Get("/me", authHandler.HandleMe)
			})
		})

		r.Route("/repositories", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", repoHandler.HandleList)
			r.Post("/", repoHandler.HandleAdd)
			r.Get("/{repoID}", repoHandler.HandleGet)
			r.Delete("/{repoID}", repoHandler.HandleDelete)
			r.Post("/{repoID}/sync", repoHandler.HandleSync)
			r.Get("/{repoID}/branches", repoHandler.HandleBranches)
			r.Get("/{repoID}/settings", repoHandler.HandleGetSettings)
			r.Patch("/{repoID}/settings", repoHandler.HandleUpdateSettings)
			r.Get("/{repoID}/webhooks", repoHandler.HandleListWebhooks)
			r.Post("/{repoID}/webhooks", repoHandler.HandleCreateWebhook)
			r.Delete("/{repoID}/webhooks/{hookID}", repoHandler.HandleDeleteWebhook)
		})

		// Deliveries come from GitHub, authenticated by HMAC signature.
		r.Post("/webhooks/github", webhookHandler.HandleGitHubEvent)
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// Start runs the HTTP server and the background sync runner until SIGINT or
// SIGTERM, then shuts both down gracefully.
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return s.run(quit)
}

// run serves until an error or a value on quit. The sync runner may be
// mid-pass when shutdown starts, so the database stays open until Run has
// returned.
func (s *Server) run(quit <-chan os.Signal) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		s.runner.Run(bgCtx)
	}()
	go s.limiter.Run(bgCtx)
	defer func() {
		stopBackground()
		<-runnerDone
	}()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		stopBackground()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Handler exposes the assembled router, used by httptest in integration
// tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
