package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/echo/internal/apperror"
	"github.com/sakif/echo/internal/model"
	"github.com/sakif/echo/internal/repository"
)

// compile-time check that *WebhookStore implements repository.WebhookRepository
var _ repository.WebhookRepository = (*WebhookStore)(nil)

// WebhookStore persists webhook registrations.
type WebhookStore struct {
	conn *sql.DB
}

const webhookColumns = `id, repository_id, github_hook_id, url, secret, events,
	is_active, last_delivery_at, last_delivery_status, created_at, updated_at`

// Create inserts a new webhook registration. The events slice is stored as a
// JSON array in a TEXT column.
func (s *WebhookStore) Create(ctx context.Context, hook *model.Webhook) error {
	now := time.Now().UTC()
	hook.ID = xid.New().String()
	hook.CreatedAt = now
	hook.UpdatedAt = now

	events, err := json.Marshal(hook.Events)
	if err != nil {
		return fmt.Errorf("sqlite: encoding webhook events: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO webhooks (`+webhookColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hook.ID,
		hook.RepositoryID,
		hook.GitHubHookID,
		hook.URL,
		hook.Secret,
		string(events),
		hook.IsActive,
		nullTime(hook.LastDeliveryAt),
		hook.LastDeliveryStat,
		hook.CreatedAt,
		hook.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting webhook for %s: %w", hook.RepositoryID, err)
	}

	return nil
}

// GetByID retrieves a webhook by its internal ID.
func (s *WebhookStore) GetByID(ctx context.Context, id string) (*model.Webhook, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id)

	hook, err := scanWebhook(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("webhook", id)
		}
		return nil, fmt.Errorf("sqlite: getting webhook %s: %w", id, err)
	}
	return hook, nil
}

// ListByRepository returns all webhooks registered for a repository.
func (s *WebhookStore) ListByRepository(ctx context.Context, repoID string) ([]model.Webhook, error) {
	return s.list(ctx, `WHERE repository_id = ? ORDER BY created_at`, repoID)
}

// ListActiveByRepository returns only the active webhooks for a repository.
// The ingest path uses this to find candidate secrets for signature checks.
func (s *WebhookStore) ListActiveByRepository(ctx context.Context, repoID string) ([]model.Webhook, error) {
	return s.list(ctx, `WHERE repository_id = ? AND is_active = 1 ORDER BY created_at`, repoID)
}

func (s *WebhookStore) list(ctx context.Context, where string, arg any) ([]model.Webhook, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []model.Webhook
	for rows.Next() {
		hook, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning webhook row: %w", err)
		}
		hooks = append(hooks, *hook)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating webhooks: %w", err)
	}

	return hooks, nil
}

// RecordDelivery stamps the time and status of the latest delivery.
func (s *WebhookStore) RecordDelivery(ctx context.Context, id string, at time.Time, status string) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE webhooks
		 SET last_delivery_at = ?, last_delivery_status = ?, updated_at = ?
		 WHERE id = ?`,
		at.UTC(), status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: recording webhook delivery %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("webhook", id)
	}

	return nil
}

// Delete removes a webhook registration.
func (s *WebhookStore) Delete(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting webhook %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("webhook", id)
	}

	return nil
}

func scanWebhook(row scanner) (*model.Webhook, error) {
	var (
		hook         model.Webhook
		events       string
		lastDelivery sql.NullTime
	)

	err := row.Scan(
		&hook.ID,
		&hook.RepositoryID,
		&hook.GitHubHookID,
		&hook.URL,
		&hook.Secret,
		&events,
		&hook.IsActive,
		&lastDelivery,
		&hook.LastDeliveryStat,
		&hook.CreatedAt,
		&hook.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(events), &hook.Events); err != nil {
		return nil, fmt.Errorf("decoding webhook events: %w", err)
	}
	if lastDelivery.Valid {
		hook.LastDeliveryAt = lastDelivery.Time
	}

	return &hook, nil
}
