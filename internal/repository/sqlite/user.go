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

// compile-time check that *UserStore implements repository.UserRepository
var _ repository.UserRepository = (*UserStore)(nil)

// UserStore persists user accounts.
type UserStore struct {
	conn *sql.DB
}

const userColumns = `id, email, password_hash, display_name, github_id,
	github_username, github_avatar_url, github_token, email_notifications,
	created_at, updated_at`

// Create inserts a new user. The ID and timestamps are generated here and
// written back into the caller's struct.
//
// A UNIQUE violation on email is translated to apperror.ErrConflict so the
// handler can return 409 instead of a generic 500.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.GitHubID,
		user.GitHubUsername,
		user.GitHubAvatarURL,
		user.GitHubToken,
		user.EmailNotifications,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperror.Conflict("email already registered")
		}
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", user.Email, err)
	}

	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.getOne(ctx, `WHERE id = ?`, id)
}

// GetByEmail retrieves a user by email address.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getOne(ctx, `WHERE email = ?`, email)
}

// GetByGitHubID retrieves a user by their linked GitHub account ID.
func (s *UserStore) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return s.getOne(ctx, `WHERE github_id = ? AND github_id != 0`, githubID)
}

func (s *UserStore) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	var u model.User

	err := s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users `+where, arg,
	).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.DisplayName,
		&u.GitHubID,
		&u.GitHubUsername,
		&u.GitHubAvatarURL,
		&u.GitHubToken,
		&u.EmailNotifications,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}

	return &u, nil
}

// Update saves the mutable profile fields of an existing user.
// ID, email, and created_at are immutable here.
func (s *UserStore) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	result, err := s.conn.ExecContext(ctx,
		`UPDATE users
		 SET password_hash = ?, display_name = ?, github_id = ?,
		     github_username = ?, github_avatar_url = ?, github_token = ?,
		     email_notifications = ?, updated_at = ?
		 WHERE id = ?`,
		user.PasswordHash,
		user.DisplayName,
		user.GitHubID,
		user.GitHubUsername,
		user.GitHubAvatarURL,
		user.GitHubToken,
		user.EmailNotifications,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}
