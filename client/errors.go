// Package client is the Go client for the Echo API. Its centerpiece is the
// session Manager: the single owner of the authentication state (current
// user, access and refresh tokens), persisted across runs in a credentials
// file and kept consistent through login, logout, refresh, and the GitHub
// OAuth callback.
package client

import "fmt"

// ValidationError reports client-side input problems (malformed email,
// missing repository name) and server-side 400 responses.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// AuthenticationError covers bad credentials and expired or invalid tokens
// (401 responses). The message comes from the server's error payload when
// present.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

// RequestError is any other non-2xx response or transport failure.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
	}
	return e.Message
}

// MissingTokenError is returned by the OAuth callback handler when the
// redirect carries neither tokens nor an explicit provider error.
type MissingTokenError struct{}

func (e *MissingTokenError) Error() string { return "missing authentication tokens" }
