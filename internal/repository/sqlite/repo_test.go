package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/echo/internal/apperror"
	"github.com/sakif/echo/internal/model"
)

func createTestRepo(t *testing.T, r *RepoStore, ownerID, fullName string) *model.Repository {
	t.Helper()
	repo := &model.Repository{
		OwnerID:       ownerID,
		GitHubID:      int64(len(fullName)) * 1000,
		Name:          fullName[len("owner/"):],
		FullName:      fullName,
		HTMLURL:       "https://github.com/" + fullName,
		OwnerLogin:    "owner",
		Visibility:    "public",
		DefaultBranch: "main",
		IsActive:      true,
	}
	if err := r.Create(context.Background(), repo); err != nil {
		t.Fatalf("failed to create test repo: %v", err)
	}
	return repo
}

func TestRepoCreate_InsertsDefaultSettings(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db.Users(), "owner@example.com")
	repo := createTestRepo(t, db.Repos(), owner.ID, "owner/project")

	// Create must also insert the settings row in the same transaction.
	settings, err := db.Repos().GetSettings(context.Background(), repo.ID)
	if err != nil {
		t.Fatalf("GetSettings() after Create: %v", err)
	}
	if !settings.AutoSync {
		t.Error("default settings should have AutoSync enabled")
	}
	if settings.SyncIntervalMinutes != 60 {
		t.Errorf("SyncIntervalMinutes = %d, want 60", settings.SyncIntervalMinutes)
	}
}

func TestRepoCreate_DuplicatePerOwner(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db.Users(), "owner@example.com")
	createTestRepo(t, db.Repos(), owner.ID, "owner/project")

	dupe := &model.Repository{
		OwnerID:    owner.ID,
		GitHubID:   1,
		Name:       "project",
		FullName:   "owner/project",
		HTMLURL:    "https://github.com/owner/project",
		OwnerLogin: "owner",
	}
	err := db.Repos().Create(context.Background(), dupe)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Create() error = %v, want ErrConflict", err)
	}

	// A different user tracking the same repository is fine.
	other := createTestUser(t, db.Users(), "other@example.com")
	theirs := &model.Repository{
		OwnerID:    other.ID,
		GitHubID:   1,
		Name:       "project",
		FullName:   "owner/project",
		HTMLURL:    "https://github.com/owner/project",
		OwnerLogin: "owner",
	}
	if err := db.Repos().Create(context.Background(), theirs); err != nil {
		t.Errorf("Create() for second user error = %v", err)
	}
}

func TestRepoListByOwner_ExcludesInactive(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db.Users(), "owner@example.com")
	active := createTestRepo(t, db.Repos(), owner.ID, "owner/active")
	gone := createTestRepo(t, db.Repos(), owner.ID, "owner/gone")

	gone.IsActive = false
	if err := db.Repos().Update(context.Background(), gone); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	repos, err := db.Repos().ListByOwner(context.Background(), owner.ID, false)
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(repos) != 1 || repos[0].ID != active.ID {
		t.Errorf("ListByOwner() = %d repos, want only the active one", len(repos))
	}

	all, err := db.Repos().ListByOwner(context.Background(), owner.ID, true)
	if err != nil {
		t.Fatalf("ListByOwner(includeInactive) error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListByOwner(includeInactive) = %d repos, want 2", len(all))
	}
}

func TestRepoUpdate_SyncFields(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db.Users(), "owner@example.com")
	repo := createTestRepo(t, db.Repos(), owner.ID, "owner/project")

	syncedAt := time.Now().UTC().Truncate(time.Second)
	repo.StarsCount = 42
	repo.Language = "Go"
	repo.LastSyncedAt = syncedAt
	repo.SyncError = ""

	if err := db.Repos().Update(context.Background(), repo); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	found, err := db.Repos().GetByID(context.Background(), repo.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.StarsCount != 42 {
		t.Errorf("StarsCount = %d, want 42", found.StarsCount)
	}
	if !found.LastSyncedAt.Equal(syncedAt) {
		t.Errorf("LastSyncedAt = %v, want %v", found.LastSyncedAt, syncedAt)
	}
}

func TestRepoDelete_CascadesSettings(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db.Users(), "owner@example.com")
	repo := createTestRepo(t, db.Repos(), owner.ID, "owner/project")

	if err := db.Repos().Delete(context.Background(), repo.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := db.Repos().GetByID(context.Background(), repo.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
	if _, err := db.Repos().GetSettings(context.Background(), repo.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetSettings() after delete error = %v, want ErrNotFound", err)
	}
}

func TestRepoSaveSettings_Upserts(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db.Users(), "owner@example.com")
	repo := createTestRepo(t, db.Repos(), owner.ID, "owner/project")

	settings, err := db.Repos().GetSettings(context.Background(), repo.ID)
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}

	settings.AutoSync = false
	settings.SyncIntervalMinutes = 5
	if err := db.Repos().SaveSettings(context.Background(), settings); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	found, err := db.Repos().GetSettings(context.Background(), repo.ID)
	if err != nil {
		t.Fatalf("GetSettings() after save: %v", err)
	}
	if found.AutoSync {
		t.Error("AutoSync should be off after save")
	}
	if found.SyncIntervalMinutes != 5 {
		t.Errorf("SyncIntervalMinutes = %d, want 5", found.SyncIntervalMinutes)
	}
}

func TestRepoListSyncCandidates(t *testing.T) {
	db := newTestDB(t)

	// Owner with a GitHub token: their active, auto-sync repo is a candidate.
	linked := createTestUser(t, db.Users(), "linked@example.com")
	linked.GitHubToken = "gho_token"
	if err := db.Users().Update(context.Background(), linked); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	candidate := createTestRepo(t, db.Repos(), linked.ID, "owner/candidate")

	// Same owner, auto_sync turned off: excluded.
	manual := createTestRepo(t, db.Repos(), linked.ID, "owner/manual")
	st, err := db.Repos().GetSettings(context.Background(), manual.ID)
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	st.AutoSync = false
	if err := db.Repos().SaveSettings(context.Background(), st); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	// Owner without a token: excluded regardless of settings.
	unlinked := createTestUser(t, db.Users(), "unlinked@example.com")
	createTestRepo(t, db.Repos(), unlinked.ID, "owner/no-token")

	candidates, err := db.Repos().ListSyncCandidates(context.Background())
	if err != nil {
		t.Fatalf("ListSyncCandidates() error = %v", err)
	}

	if len(candidates) != 1 {
		t.Fatalf("ListSyncCandidates() = %d candidates, want 1", len(candidates))
	}
	got := candidates[0]
	if got.Repo.ID != candidate.ID {
		t.Errorf("candidate repo = %q, want %q", got.Repo.ID, candidate.ID)
	}
	if got.IntervalMinutes != 60 {
		t.Errorf("IntervalMinutes = %d, want 60", got.IntervalMinutes)
	}
	if got.OwnerToken != "gho_token" {
		t.Errorf("OwnerToken = %q, want %q", got.OwnerToken, "gho_token")
	}
}
