// Package github is a minimal client for the GitHub REST API, covering the
// repository-metadata endpoints Echo needs: repository details, branches,
// and webhooks.
//
// Each Client is bound to one user's OAuth access token. Handlers construct
// a Client per request from the token stored on the user record; the client
// itself holds no user state beyond the token.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const apiBaseURL = "https://api.github.com"

// Repo is the subset of GitHub's repository object we consume.
type Repo struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description"`
	HTMLURL       string    `json:"html_url"`
	CloneURL      string    `json:"clone_url"`
	Visibility    string    `json:"visibility"`
	DefaultBranch string    `json:"default_branch"`
	Language      string    `json:"language"`
	Stars         int       `json:"stargazers_count"`
	Forks         int       `json:"forks_count"`
	OpenIssues    int       `json:"open_issues_count"`
	Watchers      int       `json:"watchers_count"`
	UpdatedAt     time.Time `json:"updated_at"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// Branch mirrors GitHub's branch list entries.
type Branch struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
}

// Hook mirrors GitHub's webhook objects.
type Hook struct {
	ID     int64    `json:"id"`
	Active bool     `json:"active"`
	Events []string `json:"events"`
	Config struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"config"`
}

// APIError is returned for non-2xx GitHub responses. Status lets callers
// distinguish "repo not found / no access" (404) from rate limiting or
// server trouble.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: API returned status %d: %s", e.Status, e.Body)
}

// Client calls the GitHub REST API on behalf of one user.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a Client using the given OAuth access token.
func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: apiBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// NewClientWithBaseURL is like NewClient but targets a custom API base URL.
// Tests point this at an httptest server.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = baseURL
	return c
}

// GetRepository fetches a single repository by owner and name.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repo, error) {
	var out Repo
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", owner, repo), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBranches returns the branches of a repository.
func (c *Client) ListBranches(ctx context.Context, owner, repo string) ([]Branch, error) {
	var out []Branch
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/branches", owner, repo), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListHooks returns the webhooks registered on a repository.
func (c *Client) ListHooks(ctx context.Context, owner, repo string) ([]Hook, error) {
	var out []Hook
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/hooks", owner, repo), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateHook registers a webhook delivering the given events to hookURL,
// signed with secret. Returns the created hook (with its GitHub ID).
func (c *Client) CreateHook(ctx context.Context, owner, repo, hookURL, secret string, events []string) (*Hook, error) {
	body := map[string]any{
		"name":   "web",
		"active": true,
		"events": events,
		"config": map[string]any{
			"url":          hookURL,
			"content_type": "json",
			"secret":       secret,
			"insecure_ssl": "0",
		},
	}

	var out Hook
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/hooks", owner, repo), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteHook removes a webhook by its GitHub hook ID.
func (c *Client) DeleteHook(ctx context.Context, owner, repo string, hookID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/repos/%s/%s/hooks/%d", owner, repo, hookID), nil, nil)
}

// do performs one API request. A nil out skips response decoding (for
// DELETE and other no-content calls).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("github: encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("github: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("github: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a bounded amount of the body for the error message — enough
		// to diagnose, not enough to blow up logs.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github: decoding %s %s response: %w", method, path, err)
	}
	return nil
}
