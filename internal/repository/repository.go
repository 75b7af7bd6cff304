// Package repository defines the storage interfaces the service layer
// depends on. The concrete SQLite implementation lives in repository/sqlite;
// tests substitute in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/echo/internal/model"
)

// UserRepository persists user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
}

// SyncCandidate is a repository due for background sync, joined with the
// owner's GitHub token and the configured interval.
type SyncCandidate struct {
	Repo            model.Repository
	IntervalMinutes int
	OwnerToken      string
}

// RepoRepository persists tracked repositories and their settings.
type RepoRepository interface {
	Create(ctx context.Context, repo *model.Repository) error
	GetByID(ctx context.Context, id string) (*model.Repository, error)
	GetByFullName(ctx context.Context, fullName string) (*model.Repository, error)
	ListByOwner(ctx context.Context, ownerID string, includeInactive bool) ([]model.Repository, error)
	Update(ctx context.Context, repo *model.Repository) error
	Delete(ctx context.Context, id string) error

	GetSettings(ctx context.Context, repoID string) (*model.RepositorySettings, error)
	SaveSettings(ctx context.Context, settings *model.RepositorySettings) error

	// ListSyncCandidates returns active repositories with auto_sync enabled
	// whose owners have a GitHub token. The caller decides which are due.
	ListSyncCandidates(ctx context.Context) ([]SyncCandidate, error)
}

// WebhookRepository persists webhook registrations and delivery status.
type WebhookRepository interface {
	Create(ctx context.Context, hook *model.Webhook) error
	GetByID(ctx context.Context, id string) (*model.Webhook, error)
	ListByRepository(ctx context.Context, repoID string) ([]model.Webhook, error)
	ListActiveByRepository(ctx context.Context, repoID string) ([]model.Webhook, error)
	RecordDelivery(ctx context.Context, id string, at time.Time, status string) error
	Delete(ctx context.Context, id string) error
}

// SessionRepository tracks issued refresh tokens (hashed) for revocation.
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	GetByTokenHash(ctx context.Context, hash string) (*model.Session, error)
	// Rotate replaces the session's token hash and extends its expiry —
	// the refresh endpoint's single-row update.
	Rotate(ctx context.Context, id, newHash string, expiresAt time.Time) error
	DeactivateByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
