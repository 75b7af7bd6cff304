package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
)

// Credentials is the persisted slice of the session: exactly the tokens and
// the user record. Derived flags (loading, authenticated) are never
// persisted; they are recomputed when the session is rebuilt.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user"`
}

// CredentialStore reads and writes the credentials file. Writes are atomic
// (temp file + rename) so another process watching the file never observes a
// half-written session.
type CredentialStore struct {
	path string
}

// DefaultCredentialsPath returns ~/.config/echo/credentials.json.
func DefaultCredentialsPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("client: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "echo", "credentials.json"), nil
}

// NewCredentialStore creates a store at the given path. An empty path uses
// DefaultCredentialsPath.
func NewCredentialStore(path string) (*CredentialStore, error) {
	if path == "" {
		var err error
		path, err = DefaultCredentialsPath()
		if err != nil {
			return nil, err
		}
	}
	return &CredentialStore{path: path}, nil
}

// Load reads the persisted credentials. A missing file is not an error; it
// returns an empty Credentials, the same state as after logout.
func (s *CredentialStore) Load() (*Credentials, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Credentials{}, nil
		}
		return nil, fmt.Errorf("client: reading credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		// A corrupt file is treated as signed out rather than wedging every
		// future run.
		return &Credentials{}, nil
	}
	return &creds, nil
}

// Save persists the credentials with owner-only permissions.
func (s *CredentialStore) Save(creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("client: creating credentials directory: %w", err)
	}

	raw, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("client: encoding credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("client: writing credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("client: replacing credentials: %w", err)
	}
	return nil
}

// Clear removes the credentials file. Missing is fine.
func (s *CredentialStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("client: removing credentials: %w", err)
	}
	return nil
}

// Watch polls the credentials file and signals on the returned channel when
// another process changes it. The channel closes when ctx is cancelled.
//
// Polling mtime is deliberately coarse: the reaction to any external change
// is a full session re-check, not a merge, so missed intermediate states do
// not matter.
func (s *CredentialStore) Watch(ctx context.Context, interval time.Duration) <-chan struct{} {
	changes := make(chan struct{}, 1)

	go func() {
		defer close(changes)

		last := s.modTime()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current := s.modTime()
				if current.Equal(last) {
					continue
				}
				last = current
				select {
				case changes <- struct{}{}:
				default:
					// A signal is already pending; the watcher re-reads the
					// whole file anyway.
				}
			}
		}
	}()

	return changes
}

func (s *CredentialStore) modTime() time.Time {
	info, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
