package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// User is the identity record the server returns for an authenticated
// account.
type User struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	DisplayName        string `json:"display_name"`
	GitHubUsername     string `json:"github_username"`
	GitHubAvatarURL    string `json:"github_avatar_url"`
	EmailNotifications bool   `json:"email_notifications"`
}

// Repository mirrors the server's tracked-repository record.
type Repository struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description"`
	HTMLURL       string    `json:"html_url"`
	Language      string    `json:"language"`
	StarsCount    int       `json:"stars_count"`
	ForksCount    int       `json:"forks_count"`
	OpenIssues    int       `json:"open_issues_count"`
	DefaultBranch string    `json:"default_branch"`
	LastSyncedAt  time.Time `json:"last_synced_at"`
	SyncError     string    `json:"sync_error"`
}

// Branch mirrors the server's branch listing entries.
type Branch struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
}

// authPayload is the body of signup, login, and refresh responses.
type authPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// apiError is the server's standard error body.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// Client is the low-level HTTP client for the Echo API. It is stateless:
// tokens are passed per call. The session Manager layers state on top.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the API at baseURL (no trailing slash).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) signup(ctx context.Context, email, password, displayName string) (*authPayload, error) {
	body := map[string]string{"email": email, "password": password}
	if displayName != "" {
		body["display_name"] = displayName
	}
	var out authPayload
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) login(ctx context.Context, email, password string) (*authPayload, error) {
	var out authPayload
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", accessToken, nil, nil)
}

func (c *Client) me(ctx context.Context, accessToken string) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*authPayload, error) {
	var out authPayload
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one request and maps non-2xx responses onto the error
// taxonomy: 401 → AuthenticationError, 400 → ValidationError, anything else
// → RequestError. Transport failures become RequestError with status 0.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Message: fmt.Sprintf("encoding request: %v", err)}
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &RequestError{Message: fmt.Sprintf("building request: %v", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return translateResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Message: fmt.Sprintf("decoding response: %v", err)}
	}
	return nil
}

// translateResponse builds a typed error from a non-2xx response, preferring
// the server's message over a generic fallback.
func translateResponse(resp *http.Response) error {
	var payload apiError
	message := ""
	if raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		if json.Unmarshal(raw, &payload) == nil {
			message = payload.Message
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if message == "" {
			message = "authentication failed"
		}
		return &AuthenticationError{Message: message}
	case http.StatusBadRequest:
		if message == "" {
			message = "invalid request"
		}
		return &ValidationError{Field: payload.Field, Message: message}
	default:
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &RequestError{Status: resp.StatusCode, Message: message}
	}
}
