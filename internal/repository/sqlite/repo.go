package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/echo/internal/apperror"
	"github.com/sakif/echo/internal/model"
	"github.com/sakif/echo/internal/repository"
)

// compile-time check that *RepoStore implements repository.RepoRepository
var _ repository.RepoRepository = (*RepoStore)(nil)

// RepoStore persists tracked repositories and their settings.
type RepoStore struct {
	conn *sql.DB
}

const repoColumns = `id, owner_id, github_id, name, full_name, description,
	html_url, clone_url, owner_login, visibility, default_branch, language,
	stars_count, forks_count, open_issues_count, watchers_count, is_active,
	last_synced_at, sync_error, github_updated_at, created_at, updated_at`

// Create inserts a new tracked repository with a default settings row.
// Both inserts run in one transaction so a repository can never exist
// without settings.
func (s *RepoStore) Create(ctx context.Context, repo *model.Repository) error {
	now := time.Now().UTC()
	repo.ID = xid.New().String()
	repo.CreatedAt = now
	repo.UpdatedAt = now

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO repositories (`+repoColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		repo.ID,
		repo.OwnerID,
		repo.GitHubID,
		repo.Name,
		repo.FullName,
		repo.Description,
		repo.HTMLURL,
		repo.CloneURL,
		repo.OwnerLogin,
		repo.Visibility,
		repo.DefaultBranch,
		repo.Language,
		repo.StarsCount,
		repo.ForksCount,
		repo.OpenIssues,
		repo.WatchersCount,
		repo.IsActive,
		nullTime(repo.LastSyncedAt),
		repo.SyncError,
		nullTime(repo.GitHubUpdated),
		repo.CreatedAt,
		repo.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperror.Conflict("repository already added")
		}
		return fmt.Errorf("sqlite: inserting repository %s: %w", repo.FullName, err)
	}

	settings := model.DefaultSettings(repo.ID)
	settings.UpdatedAt = now
	if err := saveSettingsTx(ctx, tx, settings); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing repository insert: %w", err)
	}
	return nil
}

// GetByID retrieves a tracked repository by its internal ID.
func (s *RepoStore) GetByID(ctx context.Context, id string) (*model.Repository, error) {
	return s.getOne(ctx, `WHERE id = ?`, id)
}

// GetByFullName retrieves a tracked repository by its "owner/repo" name.
// Used by the webhook ingest path, which has no user context.
func (s *RepoStore) GetByFullName(ctx context.Context, fullName string) (*model.Repository, error) {
	return s.getOne(ctx, `WHERE full_name = ?`, fullName)
}

func (s *RepoStore) getOne(ctx context.Context, where string, arg any) (*model.Repository, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+repoColumns+` FROM repositories `+where, arg)

	repo, err := scanRepo(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("repository", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting repository: %w", err)
	}
	return repo, nil
}

// ListByOwner returns the repositories tracked by a user, newest first.
// Inactive repositories are excluded unless includeInactive is set.
func (s *RepoStore) ListByOwner(ctx context.Context, ownerID string, includeInactive bool) ([]model.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE owner_id = ?`
	if !includeInactive {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.conn.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		repo, err := scanRepo(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning repository row: %w", err)
		}
		repos = append(repos, *repo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating repositories: %w", err)
	}

	return repos, nil
}

// Update saves the synced metadata fields of an existing repository.
func (s *RepoStore) Update(ctx context.Context, repo *model.Repository) error {
	repo.UpdatedAt = time.Now().UTC()

	result, err := s.conn.ExecContext(ctx,
		`UPDATE repositories
		 SET description = ?, visibility = ?, default_branch = ?, language = ?,
		     stars_count = ?, forks_count = ?, open_issues_count = ?,
		     watchers_count = ?, is_active = ?, last_synced_at = ?,
		     sync_error = ?, github_updated_at = ?, updated_at = ?
		 WHERE id = ?`,
		repo.Description,
		repo.Visibility,
		repo.DefaultBranch,
		repo.Language,
		repo.StarsCount,
		repo.ForksCount,
		repo.OpenIssues,
		repo.WatchersCount,
		repo.IsActive,
		nullTime(repo.LastSyncedAt),
		repo.SyncError,
		nullTime(repo.GitHubUpdated),
		repo.UpdatedAt,
		repo.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating repository %s: %w", repo.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("repository", repo.ID)
	}

	return nil
}

// Delete removes a tracked repository. Settings and webhooks go with it via
// ON DELETE CASCADE.
func (s *RepoStore) Delete(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM repositories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting repository %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("repository", id)
	}

	return nil
}

// GetSettings returns the settings row for a repository.
func (s *RepoStore) GetSettings(ctx context.Context, repoID string) (*model.RepositorySettings, error) {
	var st model.RepositorySettings

	err := s.conn.QueryRowContext(ctx,
		`SELECT repository_id, auto_sync, sync_interval_minutes,
		        notifications_enabled, notify_on_push, notify_on_pr,
		        notify_on_issues, agent_enabled, auto_create_issues, updated_at
		 FROM repository_settings WHERE repository_id = ?`,
		repoID,
	).Scan(
		&st.RepositoryID,
		&st.AutoSync,
		&st.SyncIntervalMinutes,
		&st.NotificationsOn,
		&st.NotifyOnPush,
		&st.NotifyOnPR,
		&st.NotifyOnIssues,
		&st.AgentEnabled,
		&st.AutoCreateIssues,
		&st.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("repository settings", repoID)
		}
		return nil, fmt.Errorf("sqlite: getting settings for %s: %w", repoID, err)
	}

	return &st, nil
}

// SaveSettings upserts the settings row for a repository.
func (s *RepoStore) SaveSettings(ctx context.Context, settings *model.RepositorySettings) error {
	settings.UpdatedAt = time.Now().UTC()
	return saveSettings(ctx, s.conn, settings)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveSettings(ctx context.Context, conn execer, st *model.RepositorySettings) error {
	_, err := conn.ExecContext(ctx,
		`INSERT INTO repository_settings (
			repository_id, auto_sync, sync_interval_minutes,
			notifications_enabled, notify_on_push, notify_on_pr,
			notify_on_issues, agent_enabled, auto_create_issues, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(repository_id) DO UPDATE SET
			auto_sync = excluded.auto_sync,
			sync_interval_minutes = excluded.sync_interval_minutes,
			notifications_enabled = excluded.notifications_enabled,
			notify_on_push = excluded.notify_on_push,
			notify_on_pr = excluded.notify_on_pr,
			notify_on_issues = excluded.notify_on_issues,
			agent_enabled = excluded.agent_enabled,
			auto_create_issues = excluded.auto_create_issues,
			updated_at = excluded.updated_at`,
		st.RepositoryID,
		st.AutoSync,
		st.SyncIntervalMinutes,
		st.NotificationsOn,
		st.NotifyOnPush,
		st.NotifyOnPR,
		st.NotifyOnIssues,
		st.AgentEnabled,
		st.AutoCreateIssues,
		st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving settings for %s: %w", st.RepositoryID, err)
	}
	return nil
}

func saveSettingsTx(ctx context.Context, tx *sql.Tx, st *model.RepositorySettings) error {
	return saveSettings(ctx, tx, st)
}

// ListSyncCandidates joins active repositories with their settings and the
// owner's GitHub token. Only rows with auto_sync on and a usable token are
// returned; the sync runner decides which are actually due.
func (s *RepoStore) ListSyncCandidates(ctx context.Context) ([]repository.SyncCandidate, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+prefixed(repoColumns, "r.")+`,
		        s.sync_interval_minutes, u.github_token
		 FROM repositories r
		 JOIN repository_settings s ON s.repository_id = r.id
		 JOIN users u ON u.id = r.owner_id
		 WHERE r.is_active = 1 AND s.auto_sync = 1 AND u.github_token != ''`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing sync candidates: %w", err)
	}
	defer rows.Close()

	var out []repository.SyncCandidate
	for rows.Next() {
		var c repository.SyncCandidate
		if err := scanRepoInto(rows, &c.Repo, &c.IntervalMinutes, &c.OwnerToken); err != nil {
			return nil, fmt.Errorf("sqlite: scanning sync candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating sync candidates: %w", err)
	}

	return out, nil
}

// prefixed rewrites a comma-separated column list with a table alias prefix.
func prefixed(columns, prefix string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRepo(row scanner) (*model.Repository, error) {
	var repo model.Repository
	if err := scanRepoInto(row, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// scanRepoInto scans the repoColumns list into repo, plus any extra columns
// appended to the SELECT (used by the sync-candidate join).
func scanRepoInto(row scanner, repo *model.Repository, extra ...any) error {
	var lastSynced, ghUpdated sql.NullTime

	dest := []any{
		&repo.ID,
		&repo.OwnerID,
		&repo.GitHubID,
		&repo.Name,
		&repo.FullName,
		&repo.Description,
		&repo.HTMLURL,
		&repo.CloneURL,
		&repo.OwnerLogin,
		&repo.Visibility,
		&repo.DefaultBranch,
		&repo.Language,
		&repo.StarsCount,
		&repo.ForksCount,
		&repo.OpenIssues,
		&repo.WatchersCount,
		&repo.IsActive,
		&lastSynced,
		&repo.SyncError,
		&ghUpdated,
		&repo.CreatedAt,
		&repo.UpdatedAt,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return err
	}

	if lastSynced.Valid {
		repo.LastSyncedAt = lastSynced.Time
	}
	if ghUpdated.Valid {
		repo.GitHubUpdated = ghUpdated.Time
	}
	return nil
}

// nullTime converts a zero time to NULL for storage.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
