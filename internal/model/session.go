package model

import "time"

// Session tracks an issued refresh token so it can be revoked.
//
// We store a SHA-256 hash of the refresh token, never the token itself —
// a leaked database does not leak usable credentials. Logout deactivates
// all of a user's sessions; the refresh endpoint rejects tokens whose
// session row is inactive or expired even if the JWT itself still verifies.
type Session struct {
	ID               string    `json:"id"                 db:"id"`
	UserID           string    `json:"user_id"            db:"user_id"`
	RefreshTokenHash string    `json:"-"                  db:"refresh_token_hash"`
	UserAgent        string    `json:"user_agent,omitempty" db:"user_agent"`
	IsActive         bool      `json:"is_active"          db:"is_active"`
	ExpiresAt        time.Time `json:"expires_at"         db:"expires_at"`
	CreatedAt        time.Time `json:"created_at"         db:"created_at"`
	LastActiveAt     time.Time `json:"last_active_at"     db:"last_active_at"`
}
