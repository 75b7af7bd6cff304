package model

import "time"

// Repository is a tracked GitHub repository and its cached metadata.
//
// The canonical data lives on GitHub; we store a snapshot refreshed by
// explicit sync calls and the background sync runner. LastSyncedAt and
// SyncError record the outcome of the most recent sync attempt — a failed
// sync keeps the stale snapshot and surfaces the error instead of wiping
// the row.
type Repository struct {
	ID             string    `json:"id"                 db:"id"`
	OwnerID        string    `json:"-"                  db:"owner_id"` // internal user ID of the tracker
	GitHubID       int64     `json:"github_id"          db:"github_id"`
	Name           string    `json:"name"               db:"name"`
	FullName       string    `json:"full_name"          db:"full_name"` // "owner/repo"
	Description    string    `json:"description,omitempty" db:"description"`
	HTMLURL        string    `json:"html_url"           db:"html_url"`
	CloneURL       string    `json:"clone_url,omitempty" db:"clone_url"`
	OwnerLogin     string    `json:"owner_login"        db:"owner_login"` // GitHub login of the repo owner
	Visibility     string    `json:"visibility"         db:"visibility"`
	DefaultBranch  string    `json:"default_branch"     db:"default_branch"`
	Language       string    `json:"language,omitempty" db:"language"`
	StarsCount     int       `json:"stars_count"        db:"stars_count"`
	ForksCount     int       `json:"forks_count"        db:"forks_count"`
	OpenIssues     int       `json:"open_issues_count"  db:"open_issues_count"`
	WatchersCount  int       `json:"watchers_count"     db:"watchers_count"`
	IsActive       bool      `json:"is_active"          db:"is_active"`
	LastSyncedAt   time.Time `json:"last_synced_at,omitzero" db:"last_synced_at"`
	SyncError      string    `json:"sync_error,omitempty" db:"sync_error"`
	GitHubUpdated  time.Time `json:"github_updated_at,omitzero" db:"github_updated_at"`
	CreatedAt      time.Time `json:"created_at"         db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"         db:"updated_at"`
}

// RepositorySettings holds the per-repository sync, notification, and agent
// configuration. Every repository gets a settings row with these defaults
// when it is added; updates are partial (nil pointer = leave unchanged) at
// the service layer.
type RepositorySettings struct {
	RepositoryID        string    `json:"repository_id"         db:"repository_id"`
	AutoSync            bool      `json:"auto_sync"             db:"auto_sync"`
	SyncIntervalMinutes int       `json:"sync_interval_minutes" db:"sync_interval_minutes"`
	NotificationsOn     bool      `json:"notifications_enabled" db:"notifications_enabled"`
	NotifyOnPush        bool      `json:"notify_on_push"        db:"notify_on_push"`
	NotifyOnPR          bool      `json:"notify_on_pr"          db:"notify_on_pr"`
	NotifyOnIssues      bool      `json:"notify_on_issues"      db:"notify_on_issues"`
	AgentEnabled        bool      `json:"agent_enabled"         db:"agent_enabled"`
	AutoCreateIssues    bool      `json:"auto_create_issues"    db:"auto_create_issues"`
	UpdatedAt           time.Time `json:"updated_at"            db:"updated_at"`
}

// DefaultSettings returns the settings row created when a repository is added.
func DefaultSettings(repoID string) *RepositorySettings {
	return &RepositorySettings{
		RepositoryID:        repoID,
		AutoSync:            true,
		SyncIntervalMinutes: 60,
		NotificationsOn:     true,
		NotifyOnPush:        false,
		NotifyOnPR:          true,
		NotifyOnIssues:      true,
		AgentEnabled:        true,
		AutoCreateIssues:    false,
	}
}

// Branch is a repository branch as reported by GitHub. Branches are not
// persisted — they are fetched live on each request.
type Branch struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
}
