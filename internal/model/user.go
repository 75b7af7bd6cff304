// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Echo supports two identity paths: email/password signup and GitHub OAuth.
// A user created via email/password has a PasswordHash and no GitHub fields;
// a user created via OAuth has GitHubID set and may never set a password.
// The two can be linked: logging in with GitHub using an email that already
// exists attaches the GitHub identity to the existing account.
//
// WHY GitHubID int64?
// GitHub user IDs are integers. Using int64 avoids overflow for large account
// numbers. Zero means "no GitHub account linked". The UNIQUE constraint on
// github_id in the DB ensures one GitHub account maps to exactly one user.
//
// PasswordHash and GitHubToken are never serialized — the `json:"-"` tag
// keeps them out of every API response.
type User struct {
	ID                 string    `json:"id"                           db:"id"`
	Email              string    `json:"email"                        db:"email"`
	PasswordHash       string    `json:"-"                            db:"password_hash"`
	DisplayName        string    `json:"display_name,omitempty"       db:"display_name"`
	GitHubID           int64     `json:"-"                            db:"github_id"`
	GitHubUsername     string    `json:"github_username,omitempty"    db:"github_username"`
	GitHubAvatarURL    string    `json:"github_avatar_url,omitempty"  db:"github_avatar_url"`
	GitHubToken        string    `json:"-"                            db:"github_token"` // OAuth access token for GitHub API calls
	EmailNotifications bool      `json:"email_notifications"          db:"email_notifications"`
	CreatedAt          time.Time `json:"created_at"                   db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"                   db:"updated_at"`
}

// HasGitHub reports whether a GitHub account is linked to this user.
func (u *User) HasGitHub() bool {
	return u.GitHubID != 0 && u.GitHubToken != ""
}
