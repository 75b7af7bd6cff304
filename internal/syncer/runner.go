// Package syncer runs the background jobs: periodic repository metadata
// refresh and expired-session cleanup.
package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/echo/internal/repository"
	"github.com/sakif/echo/internal/service"
)

// Runner wakes up on a fixed interval, finds repositories due for a sync,
// and refreshes them with their owner's GitHub token. Each pass also sweeps
// expired session rows.
type Runner struct {
	repoStore repository.RepoRepository
	sessions  repository.SessionRepository
	repos     *service.RepoService
	github    service.GitHubFactory
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a Runner ticking at the given interval.
func New(
	repoStore repository.RepoRepository,
	sessions repository.SessionRepository,
	repos *service.RepoService,
	github service.GitHubFactory,
	interval time.Duration,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		repoStore: repoStore,
		sessions:  sessions,
		repos:     repos,
		github:    github,
		interval:  interval,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, executing one pass per tick. The first
// pass runs immediately so a restart does not delay overdue syncs by a full
// interval.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("sync runner started", slog.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("sync runner stopped")
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Runner) pass(ctx context.Context) {
	candidates, err := r.repoStore.ListSyncCandidates(ctx)
	if err != nil {
		r.logger.Error("sync pass: listing candidates", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	synced := 0
	for _, c := range candidates {
		if ctx.Err() != nil {
			return
		}
		if !due(c, now) {
			continue
		}

		repo := c.Repo
		client := r.github(c.OwnerToken)
		if err := r.repos.SyncWithClient(ctx, client, &repo); err != nil {
			// SyncWithClient already recorded sync_error on the row.
			r.logger.Warn("sync pass: repository failed",
				slog.String("repo", repo.FullName),
				slog.String("error", err.Error()),
			)
			continue
		}
		synced++
	}

	if deleted, err := r.sessions.DeleteExpired(ctx, now); err != nil {
		r.logger.Error("sync pass: session cleanup", slog.String("error", err.Error()))
	} else if deleted > 0 {
		r.logger.Info("expired sessions removed", slog.Int64("count", deleted))
	}

	if synced > 0 {
		r.logger.Info("sync pass completed",
			slog.Int("candidates", len(candidates)),
			slog.Int("synced", synced),
		)
	}
}

// due reports whether a candidate needs a refresh: never synced, its
// configured interval has elapsed, or a webhook marked upstream activity
// after the last sync.
func due(c repository.SyncCandidate, now time.Time) bool {
	last := c.Repo.LastSyncedAt
	if last.IsZero() {
		return true
	}
	if now.Sub(last) >= time.Duration(c.IntervalMinutes)*time.Minute {
		return true
	}
	return c.Repo.GitHubUpdated.After(last)
}
