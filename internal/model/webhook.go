package model

import "time"

// Webhook is a GitHub webhook registered on a tracked repository.
//
// Secret is the HMAC key GitHub uses to sign deliveries
// (X-Hub-Signature-256); it never appears in API responses.
// GitHubHookID is the hook's ID on GitHub's side, needed to delete it.
type Webhook struct {
	ID               string    `json:"id"                  db:"id"`
	RepositoryID     string    `json:"repository_id"       db:"repository_id"`
	GitHubHookID     int64     `json:"github_hook_id,omitempty" db:"github_hook_id"`
	URL              string    `json:"url"                 db:"url"`
	Secret           string    `json:"-"                   db:"secret"`
	Events           []string  `json:"events"              db:"events"` // stored as a JSON array
	IsActive         bool      `json:"is_active"           db:"is_active"`
	LastDeliveryAt   time.Time `json:"last_delivery_at,omitzero" db:"last_delivery_at"`
	LastDeliveryStat string    `json:"last_delivery_status,omitempty" db:"last_delivery_status"` // "success" or "failed"
	CreatedAt        time.Time `json:"created_at"          db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"          db:"updated_at"`
}

// DefaultWebhookEvents are the events subscribed to when a webhook is
// created without an explicit event list.
var DefaultWebhookEvents = []string{"push", "pull_request", "issues"}
