package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sakif/echo/internal/apperror"
	"github.com/sakif/echo/internal/github"
	"github.com/sakif/echo/internal/model"
	"github.com/sakif/echo/internal/repository"
)

// In-memory fakes for the repository interfaces. Hand-written fakes (not a
// mock framework) keep tests easy to read: you can see exactly what each
// fake does.

type fakeUserRepo struct {
	users  map[string]*model.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	for _, u := range f.users {
		if u.Email == user.Email {
			return apperror.Conflict("email already registered")
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	for _, u := range f.users {
		if u.GitHubID == githubID && githubID != 0 {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", fmt.Sprint(githubID))
}

func (f *fakeUserRepo) Update(ctx context.Context, user *model.User) error {
	if _, ok := f.users[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

type fakeSessionRepo struct {
	sessions map[string]*model.Session
	nextID   int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*model.Session)}
}

var _ repository.SessionRepository = (*fakeSessionRepo)(nil)

func (f *fakeSessionRepo) Create(ctx context.Context, session *model.Session) error {
	f.nextID++
	session.ID = fmt.Sprintf("session-%d", f.nextID)
	session.CreatedAt = time.Now()
	session.LastActiveAt = time.Now()
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeSessionRepo) GetByTokenHash(ctx context.Context, hash string) (*model.Session, error) {
	for _, s := range f.sessions {
		if s.RefreshTokenHash == hash && s.IsActive && s.ExpiresAt.After(time.Now()) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("session", "token")
}

func (f *fakeSessionRepo) Rotate(ctx context.Context, id, newHash string, expiresAt time.Time) error {
	s, ok := f.sessions[id]
	if !ok || !s.IsActive {
		return apperror.NotFound("session", id)
	}
	s.RefreshTokenHash = newHash
	s.ExpiresAt = expiresAt
	return nil
}

func (f *fakeSessionRepo) DeactivateByUser(ctx context.Context, userID string) error {
	for _, s := range f.sessions {
		if s.UserID == userID {
			s.IsActive = false
		}
	}
	return nil
}

func (f *fakeSessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	for id, s := range f.sessions {
		if s.ExpiresAt.Before(before) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

// activeCount reports how many of a user's sessions are still active.
func (f *fakeSessionRepo) activeCount(userID string) int {
	n := 0
	for _, s := range f.sessions {
		if s.UserID == userID && s.IsActive {
			n++
		}
	}
	return n
}

type fakeRepoRepo struct {
	repos    map[string]*model.Repository
	settings map[string]*model.RepositorySettings
	nextID   int
}

func newFakeRepoRepo() *fakeRepoRepo {
	return &fakeRepoRepo{
		repos:    make(map[string]*model.Repository),
		settings: make(map[string]*model.RepositorySettings),
	}
}

var _ repository.RepoRepository = (*fakeRepoRepo)(nil)

func (f *fakeRepoRepo) Create(ctx context.Context, repo *model.Repository) error {
	for _, r := range f.repos {
		if r.OwnerID == repo.OwnerID && r.FullName == repo.FullName {
			return apperror.Conflict("repository already added")
		}
	}
	f.nextID++
	repo.ID = fmt.Sprintf("repo-%d", f.nextID)
	repo.CreatedAt = time.Now()
	repo.UpdatedAt = time.Now()
	copied := *repo
	f.repos[repo.ID] = &copied
	f.settings[repo.ID] = model.DefaultSettings(repo.ID)
	return nil
}

func (f *fakeRepoRepo) GetByID(ctx context.Context, id string) (*model.Repository, error) {
	r, ok := f.repos[id]
	if !ok {
		return nil, apperror.NotFound("repository", id)
	}
	copied := *r
	return &copied, nil
}

func (f *fakeRepoRepo) GetByFullName(ctx context.Context, fullName string) (*model.Repository, error) {
	for _, r := range f.repos {
		if r.FullName == fullName {
			copied := *r
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("repository", fullName)
}

func (f *fakeRepoRepo) ListByOwner(ctx context.Context, ownerID string, includeInactive bool) ([]model.Repository, error) {
	var out []model.Repository
	for _, r := range f.repos {
		if r.OwnerID != ownerID {
			continue
		}
		if !includeInactive && !r.IsActive {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeRepoRepo) Update(ctx context.Context, repo *model.Repository) error {
	if _, ok := f.repos[repo.ID]; !ok {
		return apperror.NotFound("repository", repo.ID)
	}
	copied := *repo
	f.repos[repo.ID] = &copied
	return nil
}

func (f *fakeRepoRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.repos[id]; !ok {
		return apperror.NotFound("repository", id)
	}
	delete(f.repos, id)
	delete(f.settings, id)
	return nil
}

func (f *fakeRepoRepo) GetSettings(ctx context.Context, repoID string) (*model.RepositorySettings, error) {
	s, ok := f.settings[repoID]
	if !ok {
		return nil, apperror.NotFound("repository settings", repoID)
	}
	copied := *s
	return &copied, nil
}

func (f *fakeRepoRepo) SaveSettings(ctx context.Context, settings *model.RepositorySettings) error {
	copied := *settings
	f.settings[settings.RepositoryID] = &copied
	return nil
}

func (f *fakeRepoRepo) ListSyncCandidates(ctx context.Context) ([]repository.SyncCandidate, error) {
	return nil, nil
}

type fakeWebhookRepo struct {
	hooks  map[string]*model.Webhook
	nextID int
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{hooks: make(map[string]*model.Webhook)}
}

var _ repository.WebhookRepository = (*fakeWebhookRepo)(nil)

func (f *fakeWebhookRepo) Create(ctx context.Context, hook *model.Webhook) error {
	f.nextID++
	hook.ID = fmt.Sprintf("hook-%d", f.nextID)
	hook.CreatedAt = time.Now()
	hook.UpdatedAt = time.Now()
	copied := *hook
	f.hooks[hook.ID] = &copied
	return nil
}

func (f *fakeWebhookRepo) GetByID(ctx context.Context, id string) (*model.Webhook, error) {
	h, ok := f.hooks[id]
	if !ok {
		return nil, apperror.NotFound("webhook", id)
	}
	copied := *h
	return &copied, nil
}

func (f *fakeWebhookRepo) ListByRepository(ctx context.Context, repoID string) ([]model.Webhook, error) {
	var out []model.Webhook
	for _, h := range f.hooks {
		if h.RepositoryID == repoID {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (f *fakeWebhookRepo) ListActiveByRepository(ctx context.Context, repoID string) ([]model.Webhook, error) {
	var out []model.Webhook
	for _, h := range f.hooks {
		if h.RepositoryID == repoID && h.IsActive {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (f *fakeWebhookRepo) RecordDelivery(ctx context.Context, id string, at time.Time, status string) error {
	h, ok := f.hooks[id]
	if !ok {
		return apperror.NotFound("webhook", id)
	}
	h.LastDeliveryAt = at
	h.LastDeliveryStat = status
	return nil
}

func (f *fakeWebhookRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.hooks[id]; !ok {
		return apperror.NotFound("webhook", id)
	}
	delete(f.hooks, id)
	return nil
}

// fakeGitHub implements GitHubAPI with canned responses.
type fakeGitHub struct {
	repo      *github.Repo
	repoErr   error
	branches  []github.Branch
	hook      *github.Hook
	deleteErr error

	createdHookURL string
	deletedHookID  int64
}

var _ GitHubAPI = (*fakeGitHub)(nil)

func (f *fakeGitHub) GetRepository(ctx context.Context, owner, repo string) (*github.Repo, error) {
	if f.repoErr != nil {
		return nil, f.repoErr
	}
	return f.repo, nil
}

func (f *fakeGitHub) ListBranches(ctx context.Context, owner, repo string) ([]github.Branch, error) {
	return f.branches, nil
}

func (f *fakeGitHub) CreateHook(ctx context.Context, owner, repo, hookURL, secret string, events []string) (*github.Hook, error) {
	f.createdHookURL = hookURL
	if f.hook != nil {
		return f.hook, nil
	}
	return &github.Hook{ID: 9001, Active: true, Events: events}, nil
}

func (f *fakeGitHub) DeleteHook(ctx context.Context, owner, repo string, hookID int64) error {
	f.deletedHookID = hookID
	return f.deleteErr
}

// testLogger discards everything below error level.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mustCreateUser(t *testing.T, users *fakeUserRepo, email, githubToken string) *model.User {
	t.Helper()
	user := &model.User{
		Email:       email,
		GitHubToken: githubToken,
	}
	if githubToken != "" {
		user.GitHubID = 12345
		user.GitHubUsername = "tester"
	}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	return user
}
