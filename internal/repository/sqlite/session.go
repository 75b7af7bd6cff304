package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/echo/internal/apperror"
	"github.com/sakif/echo/internal/model"
	"github.com/sakif/echo/internal/repository"
)

// compile-time check that *SessionStore implements repository.SessionRepository
var _ repository.SessionRepository = (*SessionStore)(nil)

// SessionStore tracks issued refresh tokens, stored as SHA-256 hashes.
type SessionStore struct {
	conn *sql.DB
}

const sessionColumns = `id, user_id, refresh_token_hash, user_agent, is_active,
	expires_at, created_at, last_active_at`

// Create inserts a new session row for a freshly issued refresh token.
func (s *SessionStore) Create(ctx context.Context, session *model.Session) error {
	now := time.Now().UTC()
	session.ID = xid.New().String()
	session.CreatedAt = now
	session.LastActiveAt = now

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO user_sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.RefreshTokenHash,
		session.UserAgent,
		session.IsActive,
		session.ExpiresAt,
		session.CreatedAt,
		session.LastActiveAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting session for user %s: %w", session.UserID, err)
	}

	return nil
}

// GetByTokenHash looks up an active, unexpired session by its token hash.
// A revoked or expired session is reported as not found so the caller cannot
// tell the difference from a token that never existed.
func (s *SessionStore) GetByTokenHash(ctx context.Context, hash string) (*model.Session, error) {
	var sess model.Session

	err := s.conn.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions
		 WHERE refresh_token_hash = ? AND is_active = 1 AND expires_at > ?`,
		hash, time.Now().UTC(),
	).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.RefreshTokenHash,
		&sess.UserAgent,
		&sess.IsActive,
		&sess.ExpiresAt,
		&sess.CreatedAt,
		&sess.LastActiveAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("session", "token")
		}
		return nil, fmt.Errorf("sqlite: getting session by token hash: %w", err)
	}

	return &sess, nil
}

// Rotate swaps in the hash of a newly issued refresh token and extends the
// session's expiry. The old token stops working immediately.
func (s *SessionStore) Rotate(ctx context.Context, id, newHash string, expiresAt time.Time) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE user_sessions
		 SET refresh_token_hash = ?, expires_at = ?, last_active_at = ?
		 WHERE id = ? AND is_active = 1`,
		newHash, expiresAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: rotating session %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("session", id)
	}

	return nil
}

// DeactivateByUser revokes every active session a user has. Logout calls
// this so that no outstanding refresh token survives.
func (s *SessionStore) DeactivateByUser(ctx context.Context, userID string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE user_sessions SET is_active = 0, last_active_at = ?
		 WHERE user_id = ? AND is_active = 1`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("sqlite: deactivating sessions for user %s: %w", userID, err)
	}
	return nil
}

// DeleteExpired removes sessions whose expiry is before the given time and
// returns how many rows went away. The background runner calls this
// periodically so dead rows don't pile up.
func (s *SessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM user_sessions WHERE expires_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired sessions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return deleted, nil
}
