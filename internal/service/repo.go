package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/echo/internal/apperror"
	"github.com/sakif/echo/internal/github"
	"github.com/sakif/echo/internal/model"
	"github.com/sakif/echo/internal/repository"
)

// GitHubAPI is the slice of the GitHub client the repo service uses.
// Tests substitute a fake; production passes github.NewClient.
type GitHubAPI interface {
	GetRepository(ctx context.Context, owner, repo string) (*github.Repo, error)
	ListBranches(ctx context.Context, owner, repo string) ([]github.Branch, error)
	CreateHook(ctx context.Context, owner, repo, hookURL, secret string, events []string) (*github.Hook, error)
	DeleteHook(ctx context.Context, owner, repo string, hookID int64) error
}

// GitHubFactory builds a GitHub client bound to one user's access token.
type GitHubFactory func(token string) GitHubAPI

// RepoService implements repository tracking: add, list, sync, settings, and
// webhook management.
type RepoService struct {
	repos    repository.RepoRepository
	users    repository.UserRepository
	webhooks repository.WebhookRepository
	github   GitHubFactory
	logger   *slog.Logger
}

// NewRepoService creates a RepoService with all required dependencies.
func NewRepoService(
	repos repository.RepoRepository,
	users repository.UserRepository,
	webhooks repository.WebhookRepository,
	githubFactory GitHubFactory,
	logger *slog.Logger,
) *RepoService {
	return &RepoService{
		repos:    repos,
		users:    users,
		webhooks: webhooks,
		github:   githubFactory,
		logger:   logger,
	}
}

// List returns the active repositories the user tracks.
func (s *RepoService) List(ctx context.Context, userID string) ([]model.Repository, error) {
	repos, err := s.repos.ListByOwner(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("service/repo: listing repositories: %w", err)
	}
	return repos, nil
}

// Add starts tracking a GitHub repository identified as "owner/name".
//
// The user's GitHub token is used to fetch the metadata, so private
// repositories work as long as the token can see them. A GitHub 404 is
// reported as not found; it covers both "does not exist" and "no access".
func (s *RepoService) Add(ctx context.Context, userID, fullName string) (*model.Repository, error) {
	owner, name, err := splitFullName(fullName)
	if err != nil {
		return nil, err
	}

	gh, err := s.clientFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	remote, err := gh.GetRepository(ctx, owner, name)
	if err != nil {
		return nil, translateGitHubErr(err, fullName)
	}

	repo := &model.Repository{
		OwnerID:  userID,
		IsActive: true,
	}
	applyRemote(repo, remote)

	if err := s.repos.Create(ctx, repo); err != nil {
		return nil, fmt.Errorf("service/repo: tracking %s: %w", fullName, err)
	}

	s.logger.Info("repository added",
		slog.String("userID", userID),
		slog.String("repo", repo.FullName),
	)

	return repo, nil
}

// Get returns one tracked repository, enforcing ownership. A repository
// owned by someone else is reported as not found, not forbidden, so IDs
// cannot be enumerated.
func (s *RepoService) Get(ctx context.Context, userID, repoID string) (*model.Repository, error) {
	repo, err := s.repos.GetByID(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("service/repo: fetching %s: %w", repoID, err)
	}
	if repo.OwnerID != userID {
		return nil, apperror.NotFound("repository", repoID)
	}
	return repo, nil
}

// Delete stops tracking a repository. Settings and webhook rows cascade.
func (s *RepoService) Delete(ctx context.Context, userID, repoID string) error {
	repo, err := s.Get(ctx, userID, repoID)
	if err != nil {
		return err
	}
	if err := s.repos.Delete(ctx, repo.ID); err != nil {
		return fmt.Errorf("service/repo: deleting %s: %w", repoID, err)
	}

	s.logger.Info("repository removed",
		slog.String("userID", userID),
		slog.String("repo", repo.FullName),
	)
	return nil
}

// Sync refreshes a repository's metadata from GitHub on demand.
func (s *RepoService) Sync(ctx context.Context, userID, repoID string) (*model.Repository, error) {
	repo, err := s.Get(ctx, userID, repoID)
	if err != nil {
		return nil, err
	}

	gh, err := s.clientFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.SyncWithClient(ctx, gh, repo); err != nil {
		return nil, err
	}
	return repo, nil
}

// SyncWithClient fetches fresh metadata for repo and saves it. On fetch
// failure the error text is recorded on the row (sync_error) so the UI can
// show why the repository is stale; the row update itself still happens.
//
// The background runner calls this directly with a client built from the
// owner's stored token.
func (s *RepoService) SyncWithClient(ctx context.Context, gh GitHubAPI, repo *model.Repository) error {
	owner, name, err := splitFullName(repo.FullName)
	if err != nil {
		return err
	}

	remote, fetchErr := gh.GetRepository(ctx, owner, name)
	if fetchErr != nil {
		repo.SyncError = fetchErr.Error()
		repo.LastSyncedAt = time.Now().UTC()
		if err := s.repos.Update(ctx, repo); err != nil {
			return fmt.Errorf("service/repo: recording sync error for %s: %w", repo.FullName, err)
		}
		return translateGitHubErr(fetchErr, repo.FullName)
	}

	applyRemote(repo, remote)
	repo.SyncError = ""
	repo.LastSyncedAt = time.Now().UTC()

	if err := s.repos.Update(ctx, repo); err != nil {
		return fmt.Errorf("service/repo: saving sync for %s: %w", repo.FullName, err)
	}

	s.logger.Debug("repository synced", slog.String("repo", repo.FullName))
	return nil
}

// Branches lists the repository's branches live from GitHub.
func (s *RepoService) Branches(ctx context.Context, userID, repoID string) ([]model.Branch, error) {
	repo, err := s.Get(ctx, userID, repoID)
	if err != nil {
		return nil, err
	}
	owner, name, err := splitFullName(repo.FullName)
	if err != nil {
		return nil, err
	}

	gh, err := s.clientFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	remote, err := gh.ListBranches(ctx, owner, name)
	if err != nil {
		return nil, translateGitHubErr(err, repo.FullName)
	}

	branches := make([]model.Branch, len(remote))
	for i, b := range remote {
		branches[i] = model.Branch{Name: b.Name, Protected: b.Protected}
	}
	return branches, nil
}

// GetSettings returns the per-repository settings.
func (s *RepoService) GetSettings(ctx context.Context, userID, repoID string) (*model.RepositorySettings, error) {
	if _, err := s.Get(ctx, userID, repoID); err != nil {
		return nil, err
	}
	settings, err := s.repos.GetSettings(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("service/repo: fetching settings for %s: %w", repoID, err)
	}
	return settings, nil
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	AutoSync            *bool `json:"auto_sync"`
	SyncIntervalMinutes *int  `json:"sync_interval_minutes"`
	NotificationsOn     *bool `json:"notifications_enabled"`
	NotifyOnPush        *bool `json:"notify_on_push"`
	NotifyOnPR          *bool `json:"notify_on_pr"`
	NotifyOnIssues      *bool `json:"notify_on_issues"`
	AgentEnabled        *bool `json:"agent_enabled"`
	AutoCreateIssues    *bool `json:"auto_create_issues"`
}

// UpdateSettings applies a partial update to a repository's settings and
// returns the merged result.
func (s *RepoService) UpdateSettings(ctx context.Context, userID, repoID string, patch SettingsPatch) (*model.RepositorySettings, error) {
	settings, err := s.GetSettings(ctx, userID, repoID)
	if err != nil {
		return nil, err
	}

	if patch.AutoSync != nil {
		settings.AutoSync = *patch.AutoSync
	}
	if patch.SyncIntervalMinutes != nil {
		if *patch.SyncIntervalMinutes < 5 {
			return nil, apperror.ValidationFailed("sync_interval_minutes", "must be at least 5")
		}
		settings.SyncIntervalMinutes = *patch.SyncIntervalMinutes
	}
	if patch.NotificationsOn != nil {
		settings.NotificationsOn = *patch.NotificationsOn
	}
	if patch.NotifyOnPush != nil {
		settings.NotifyOnPush = *patch.NotifyOnPush
	}
	if patch.NotifyOnPR != nil {
		settings.NotifyOnPR = *patch.NotifyOnPR
	}
	if patch.NotifyOnIssues != nil {
		settings.NotifyOnIssues = *patch.NotifyOnIssues
	}
	if patch.AgentEnabled != nil {
		settings.AgentEnabled = *patch.AgentEnabled
	}
	if patch.AutoCreateIssues != nil {
		settings.AutoCreateIssues = *patch.AutoCreateIssues
	}

	if err := s.repos.SaveSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("service/repo: saving settings for %s: %w", repoID, err)
	}
	return settings, nil
}

// ListWebhooks returns the webhooks registered for a repository.
func (s *RepoService) ListWebhooks(ctx context.Context, userID, repoID string) ([]model.Webhook, error) {
	if _, err := s.Get(ctx, userID, repoID); err != nil {
		return nil, err
	}
	hooks, err := s.webhooks.ListByRepository(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("service/repo: listing webhooks for %s: %w", repoID, err)
	}
	return hooks, nil
}

// CreateWebhook registers a webhook on GitHub delivering to hookURL and
// records it locally with a fresh signing secret.
func (s *RepoService) CreateWebhook(ctx context.Context, userID, repoID, hookURL string, events []string) (*model.Webhook, error) {
	repo, err := s.Get(ctx, userID, repoID)
	if err != nil {
		return nil, err
	}
	owner, name, err := splitFullName(repo.FullName)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		events = model.DefaultWebhookEvents
	}

	secret, err := github.GenerateWebhookSecret()
	if err != nil {
		return nil, fmt.Errorf("service/repo: generating webhook secret: %w", err)
	}

	gh, err := s.clientFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	remote, err := gh.CreateHook(ctx, owner, name, hookURL, secret, events)
	if err != nil {
		return nil, translateGitHubErr(err, repo.FullName)
	}

	hook := &model.Webhook{
		RepositoryID: repo.ID,
		GitHubHookID: remote.ID,
		URL:          hookURL,
		Secret:       secret,
		Events:       events,
		IsActive:     true,
	}
	if err := s.webhooks.Create(ctx, hook); err != nil {
		return nil, fmt.Errorf("service/repo: recording webhook for %s: %w", repo.FullName, err)
	}

	s.logger.Info("webhook created",
		slog.String("repo", repo.FullName),
		slog.Int64("githubHookID", remote.ID),
	)
	return hook, nil
}

// DeleteWebhook removes a webhook both from GitHub and locally.
//
// A GitHub 404 on the delete is tolerated: the hook may have been removed
// out-of-band, and the local record should still go away.
func (s *RepoService) DeleteWebhook(ctx context.Context, userID, repoID, hookID string) error {
	repo, err := s.Get(ctx, userID, repoID)
	if err != nil {
		return err
	}

	hook, err := s.webhooks.GetByID(ctx, hookID)
	if err != nil {
		return fmt.Errorf("service/repo: fetching webhook %s: %w", hookID, err)
	}
	if hook.RepositoryID != repo.ID {
		return apperror.NotFound("webhook", hookID)
	}

	if hook.GitHubHookID != 0 {
		owner, name, err := splitFullName(repo.FullName)
		if err != nil {
			return err
		}
		gh, err := s.clientFor(ctx, userID)
		if err != nil {
			return err
		}
		if err := gh.DeleteHook(ctx, owner, name, hook.GitHubHookID); err != nil {
			var apiErr *github.APIError
			if !errors.As(err, &apiErr) || apiErr.Status != 404 {
				return translateGitHubErr(err, repo.FullName)
			}
		}
	}

	if err := s.webhooks.Delete(ctx, hookID); err != nil {
		return fmt.Errorf("service/repo: deleting webhook %s: %w", hookID, err)
	}
	return nil
}

// pushPayload and issuesPayload are the subsets of GitHub's event payloads
// the ingest path reads.
type pushPayload struct {
	Ref        string `json:"ref"`
	Repository struct {
		FullName  string    `json:"full_name"`
		UpdatedAt time.Time `json:"updated_at"`
	} `json:"repository"`
}

type issuesPayload struct {
	Action     string `json:"action"`
	Repository struct {
		FullName        string `json:"full_name"`
		OpenIssuesCount int    `json:"open_issues_count"`
	} `json:"repository"`
}

// IngestEvent processes one incoming GitHub webhook delivery that already
// passed signature verification.
//
// Push events bump the repository's upstream-updated timestamp so the next
// runner pass re-syncs it early. Issue and pull-request events refresh the
// open-issues counter from the payload. Unknown event types are recorded and
// otherwise ignored.
func (s *RepoService) IngestEvent(ctx context.Context, repo *model.Repository, hookID, event string, payload []byte) error {
	status := "ok"
	defer func() {
		if err := s.webhooks.RecordDelivery(ctx, hookID, time.Now().UTC(), status); err != nil {
			s.logger.Warn("failed to record webhook delivery",
				slog.String("hookID", hookID),
				slog.String("error", err.Error()),
			)
		}
	}()

	switch event {
	case "push":
		var p pushPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			status = "bad payload"
			return apperror.ValidationFailed("payload", "malformed push event")
		}
		repo.GitHubUpdated = time.Now().UTC()
		if !p.Repository.UpdatedAt.IsZero() {
			repo.GitHubUpdated = p.Repository.UpdatedAt
		}

	case "issues", "pull_request":
		var p issuesPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			status = "bad payload"
			return apperror.ValidationFailed("payload", "malformed "+event+" event")
		}
		if p.Repository.OpenIssuesCount > 0 || p.Action == "closed" {
			repo.OpenIssues = p.Repository.OpenIssuesCount
		}
		repo.GitHubUpdated = time.Now().UTC()

	default:
		status = "ignored: " + event
		s.logger.Debug("ignoring webhook event",
			slog.String("repo", repo.FullName),
			slog.String("event", event),
		)
		return nil
	}

	if err := s.repos.Update(ctx, repo); err != nil {
		status = "update failed"
		return fmt.Errorf("service/repo: applying %s event to %s: %w", event, repo.FullName, err)
	}

	s.logger.Info("webhook event applied",
		slog.String("repo", repo.FullName),
		slog.String("event", event),
	)
	return nil
}

// FindByFullName resolves an incoming delivery's repository. Used by the
// ingest handler, which has no authenticated user.
func (s *RepoService) FindByFullName(ctx context.Context, fullName string) (*model.Repository, error) {
	repo, err := s.repos.GetByFullName(ctx, fullName)
	if err != nil {
		return nil, fmt.Errorf("service/repo: resolving %s: %w", fullName, err)
	}
	return repo, nil
}

// ActiveWebhooks returns the active webhook rows for a repository, used to
// find candidate signing secrets for an incoming delivery.
func (s *RepoService) ActiveWebhooks(ctx context.Context, repoID string) ([]model.Webhook, error) {
	hooks, err := s.webhooks.ListActiveByRepository(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("service/repo: listing active webhooks: %w", err)
	}
	return hooks, nil
}

// clientFor builds a GitHub client from the user's stored OAuth token.
func (s *RepoService) clientFor(ctx context.Context, userID string) (GitHubAPI, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/repo: fetching user %s: %w", userID, err)
	}
	if !user.HasGitHub() || user.GitHubToken == "" {
		return nil, apperror.Forbidden("GitHub account not linked")
	}
	return s.github(user.GitHubToken), nil
}

// splitFullName validates and splits an "owner/name" repository identifier.
func splitFullName(fullName string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", apperror.ValidationFailed("full_name", `must be in "owner/repo" form`)
	}
	return owner, name, nil
}

// applyRemote copies GitHub's repository metadata onto the local row.
func applyRemote(repo *model.Repository, remote *github.Repo) {
	repo.GitHubID = remote.ID
	repo.Name = remote.Name
	repo.FullName = remote.FullName
	repo.Description = remote.Description
	repo.HTMLURL = remote.HTMLURL
	repo.CloneURL = remote.CloneURL
	repo.OwnerLogin = remote.Owner.Login
	repo.Visibility = remote.Visibility
	repo.DefaultBranch = remote.DefaultBranch
	repo.Language = remote.Language
	repo.StarsCount = remote.Stars
	repo.ForksCount = remote.Forks
	repo.OpenIssues = remote.OpenIssues
	repo.WatchersCount = remote.Watchers
	repo.GitHubUpdated = remote.UpdatedAt
}

// translateGitHubErr maps GitHub API failures onto the domain error
// taxonomy. 404 covers both "missing" and "no access" on GitHub's side.
func translateGitHubErr(err error, fullName string) error {
	var apiErr *github.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case 404:
			return apperror.NotFound("GitHub repository", fullName)
		case 401, 403:
			return apperror.Forbidden("GitHub rejected the stored token")
		}
	}
	return fmt.Errorf("service/repo: GitHub request for %s: %w", fullName, err)
}
