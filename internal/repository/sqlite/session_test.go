package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/echo/internal/apperror"
	"github.com/sakif/echo/internal/model"
)

func createTestSession(t *testing.T, s *SessionStore, userID, hash string, expiresAt time.Time) *model.Session {
	t.Helper()
	sess := &model.Session{
		UserID:           userID,
		RefreshTokenHash: hash,
		UserAgent:        "test-agent",
		IsActive:         true,
		ExpiresAt:        expiresAt.UTC(),
	}
	if err := s.Create(context.Background(), sess); err != nil {
		t.Fatalf("failed to create test session: %v", err)
	}
	return sess
}

func TestSessionGetByTokenHash(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db.Users(), "user@example.com")
	created := createTestSession(t, db.Sessions(), user.ID, "hash-1", time.Now().Add(time.Hour))

	found, err := db.Sessions().GetByTokenHash(context.Background(), "hash-1")
	if err != nil {
		t.Fatalf("GetByTokenHash() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("ID = %q, want %q", found.ID, created.ID)
	}
}

func TestSessionGetByTokenHash_Expired(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db.Users(), "user@example.com")
	createTestSession(t, db.Sessions(), user.ID, "stale", time.Now().Add(-time.Minute))

	_, err := db.Sessions().GetByTokenHash(context.Background(), "stale")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByTokenHash() on expired session error = %v, want ErrNotFound", err)
	}
}

func TestSessionRotate(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db.Users(), "user@example.com")
	sess := createTestSession(t, db.Sessions(), user.ID, "old-hash", time.Now().Add(time.Hour))

	newExpiry := time.Now().Add(30 * 24 * time.Hour)
	if err := db.Sessions().Rotate(context.Background(), sess.ID, "new-hash", newExpiry); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	// The old hash must stop resolving.
	if _, err := db.Sessions().GetByTokenHash(context.Background(), "old-hash"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByTokenHash(old) error = %v, want ErrNotFound", err)
	}

	found, err := db.Sessions().GetByTokenHash(context.Background(), "new-hash")
	if err != nil {
		t.Fatalf("GetByTokenHash(new) error = %v", err)
	}
	if found.ID != sess.ID {
		t.Errorf("rotated session ID = %q, want %q", found.ID, sess.ID)
	}
}

func TestSessionDeactivateByUser(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db.Users(), "user@example.com")
	other := createTestUser(t, db.Users(), "other@example.com")

	createTestSession(t, db.Sessions(), user.ID, "mine-1", time.Now().Add(time.Hour))
	createTestSession(t, db.Sessions(), user.ID, "mine-2", time.Now().Add(time.Hour))
	createTestSession(t, db.Sessions(), other.ID, "theirs", time.Now().Add(time.Hour))

	if err := db.Sessions().DeactivateByUser(context.Background(), user.ID); err != nil {
		t.Fatalf("DeactivateByUser() error = %v", err)
	}

	for _, hash := range []string{"mine-1", "mine-2"} {
		if _, err := db.Sessions().GetByTokenHash(context.Background(), hash); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("GetByTokenHash(%q) error = %v, want ErrNotFound", hash, err)
		}
	}

	// Other users' sessions are untouched.
	if _, err := db.Sessions().GetByTokenHash(context.Background(), "theirs"); err != nil {
		t.Errorf("GetByTokenHash(theirs) error = %v", err)
	}
}

func TestSessionDeleteExpired(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db.Users(), "user@example.com")

	createTestSession(t, db.Sessions(), user.ID, "dead-1", time.Now().Add(-2*time.Hour))
	createTestSession(t, db.Sessions(), user.ID, "dead-2", time.Now().Add(-time.Hour))
	live := createTestSession(t, db.Sessions(), user.ID, "live", time.Now().Add(time.Hour))

	deleted, err := db.Sessions().DeleteExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("DeleteExpired() = %d, want 2", deleted)
	}

	found, err := db.Sessions().GetByTokenHash(context.Background(), "live")
	if err != nil {
		t.Fatalf("GetByTokenHash(live) error = %v", err)
	}
	if found.ID != live.ID {
		t.Errorf("surviving session ID = %q, want %q", found.ID, live.ID)
	}
}
