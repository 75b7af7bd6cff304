package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// Authenticated API calls. Each attaches the session's access token and, on
// a 401, transparently refreshes once and retries the request — so callers
// never see an expired-token failure while a valid refresh token is held.

// Repositories lists the tracked repositories.
func (m *Manager) Repositories(ctx context.Context) ([]Repository, error) {
	var out []Repository
	if err := m.do(ctx, http.MethodGet, "/api/repositories", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddRepository starts tracking "owner/repo".
func (m *Manager) AddRepository(ctx context.Context, fullName string) (*Repository, error) {
	if fullName == "" {
		return nil, &ValidationError{Field: "full_name", Message: "repository name is required"}
	}
	var out Repository
	body := map[string]string{"full_name": fullName}
	if err := m.do(ctx, http.MethodPost, "/api/repositories", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRepository fetches one tracked repository.
func (m *Manager) GetRepository(ctx context.Context, id string) (*Repository, error) {
	var out Repository
	if err := m.do(ctx, http.MethodGet, "/api/repositories/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRepository stops tracking a repository.
func (m *Manager) DeleteRepository(ctx context.Context, id string) error {
	return m.do(ctx, http.MethodDelete, "/api/repositories/"+url.PathEscape(id), nil, nil)
}

// SyncRepository refreshes a repository's metadata from GitHub now.
func (m *Manager) SyncRepository(ctx context.Context, id string) (*Repository, error) {
	var out Repository
	if err := m.do(ctx, http.MethodPost, "/api/repositories/"+url.PathEscape(id)+"/sync", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Branches lists a repository's branches.
func (m *Manager) Branches(ctx context.Context, id string) ([]Branch, error) {
	var out []Branch
	if err := m.do(ctx, http.MethodGet, "/api/repositories/"+url.PathEscape(id)+"/branches", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do performs one authenticated request with the refresh-and-retry policy.
func (m *Manager) do(ctx context.Context, method, path string, body, out any) error {
	token := m.snapshotAccessToken()
	if token == "" {
		return &AuthenticationError{Message: "not signed in"}
	}

	err := m.api.do(ctx, method, path, token, body, out)
	if err == nil {
		return nil
	}

	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		return err
	}

	// One refresh, one retry. A failed refresh already cleared the session.
	if !m.RefreshTokens(ctx) {
		return err
	}
	return m.api.do(ctx, method, path, m.snapshotAccessToken(), body, out)
}
