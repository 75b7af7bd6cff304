package client

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

// Session is a point-in-time snapshot of the authentication state.
//
// IsAuthenticated is derived: true iff User is non-nil, which only happens
// after a successful identity fetch with a currently held access token.
type Session struct {
	User            *User
	AccessToken     string
	RefreshToken    string
	IsLoading       bool
	IsAuthenticated bool
}

// Manager is the single source of truth for "who is logged in" and the only
// component that mutates the session. All operations are serialized: two
// concurrent Login calls cannot interleave and race to set the final state.
//
// Reads (Snapshot, IsAuthenticated) do not wait for in-flight operations;
// they observe the last committed state, with IsLoading true while an
// operation is running.
type Manager struct {
	api    *Client
	store  *CredentialStore
	logger *slog.Logger

	// opMu serializes operations; stateMu guards the fields below and is
	// never held across network calls.
	opMu    sync.Mutex
	stateMu sync.Mutex

	user         *User
	accessToken  string
	refreshToken string
	loading      bool

	expired chan struct{}
}

// NewManager creates a Manager seeded from the credential store. The session
// starts in the loading state; call CheckAuth to resolve it against the
// server.
func NewManager(api *Client, store *CredentialStore, logger *slog.Logger) (*Manager, error) {
	creds, err := store.Load()
	if err != nil {
		return nil, err
	}

	return &Manager{
		api:    api,
		store:  store,
		logger: logger,
		// Tokens and user come back from disk, but the user is not
		// authenticated until CheckAuth confirms the token still works.
		user:         nil,
		accessToken:  creds.AccessToken,
		refreshToken: creds.RefreshToken,
		loading:      true,
		expired:      make(chan struct{}, 1),
	}, nil
}

// Snapshot returns the current session state.
func (m *Manager) Snapshot() Session {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	var user *User
	if m.user != nil {
		copied := *m.user
		user = &copied
	}
	return Session{
		User:            user,
		AccessToken:     m.accessToken,
		RefreshToken:    m.refreshToken,
		IsLoading:       m.loading,
		IsAuthenticated: m.user != nil,
	}
}

// IsAuthenticated reports whether a user is currently signed in.
func (m *Manager) IsAuthenticated() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.user != nil
}

// Expired signals when the session was cleared because a refresh failed
// (silent sign-out). Consumers such as a route guard can use it to show a
// "session expired" message instead of inferring it from absent state.
func (m *Manager) Expired() <-chan struct{} {
	return m.expired
}

// Login authenticates with email and password. On failure the previous
// session fields are left exactly as they were.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setLoading(true)
	defer m.setLoading(false)

	payload, err := m.api.login(ctx, email, password)
	if err != nil {
		return err
	}

	m.commit(payload.User, payload.AccessToken, payload.RefreshToken)
	return nil
}

// Signup registers a new account and immediately establishes an
// authenticated session. Same failure contract as Login.
func (m *Manager) Signup(ctx context.Context, email, password, displayName string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setLoading(true)
	defer m.setLoading(false)

	payload, err := m.api.signup(ctx, email, password, displayName)
	if err != nil {
		return err
	}

	m.commit(payload.User, payload.AccessToken, payload.RefreshToken)
	return nil
}

// Logout clears the session. The remote revocation is best-effort: a network
// failure is logged, never surfaced, and the local session is cleared
// regardless.
func (m *Manager) Logout(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setLoading(true)
	defer m.setLoading(false)

	if token := m.snapshotAccessToken(); token != "" {
		if err := m.api.logout(ctx, token); err != nil {
			m.logger.Warn("remote logout failed", slog.String("error", err.Error()))
		}
	}

	m.clear()
}

// RefreshTokens exchanges the held refresh token for a new pair. Returns
// false without any network call or mutation when no refresh token is held.
// On a failed exchange the entire session is cleared.
//
// This is the system's single retry mechanism: callers whose request failed
// must re-invoke their own logic after a successful refresh.
func (m *Manager) RefreshTokens(ctx context.Context) bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) bool {
	m.stateMu.Lock()
	refreshToken := m.refreshToken
	m.stateMu.Unlock()

	if refreshToken == "" {
		return false
	}

	payload, err := m.api.refresh(ctx, refreshToken)
	if err != nil {
		m.logger.Info("token refresh failed, signing out", slog.String("error", err.Error()))
		m.clear()
		m.signalExpired()
		return false
	}

	m.stateMu.Lock()
	m.accessToken = payload.AccessToken
	m.refreshToken = payload.RefreshToken
	if payload.User != nil {
		m.user = payload.User
	}
	m.stateMu.Unlock()

	m.persist()
	return true
}

// CheckAuth resolves the session at startup (and after an external change to
// the credentials file).
//
// With no access token it resolves to unauthenticated without touching the
// network. Otherwise it fetches the current user; on failure it attempts
// exactly one refresh and, if that succeeds, one retried fetch. Any failure
// along that path ends in a fully cleared session. CheckAuth itself never
// returns the underlying error: a failed check is a state, not a fault.
func (m *Manager) CheckAuth(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setLoading(true)
	defer m.setLoading(false)

	token := m.snapshotAccessToken()
	if token == "" {
		m.stateMu.Lock()
		m.user = nil
		m.stateMu.Unlock()
		return
	}

	user, err := m.api.me(ctx, token)
	if err == nil {
		m.stateMu.Lock()
		m.user = user
		m.stateMu.Unlock()
		m.persist()
		return
	}

	// Token presumed expired: one refresh, one retry. With no refresh token
	// to fall back on, a dangling access token would otherwise survive here
	// as a partial pair, in memory and on disk. Clear it.
	m.stateMu.Lock()
	hasRefresh := m.refreshToken != ""
	m.stateMu.Unlock()
	if !hasRefresh {
		m.logger.Info("identity fetch failed with no refresh token, signing out",
			slog.String("error", err.Error()))
		m.clear()
		m.signalExpired()
		return
	}

	if !m.refreshLocked(ctx) {
		return
	}

	user, err = m.api.me(ctx, m.snapshotAccessToken())
	if err != nil {
		m.logger.Info("identity fetch failed after refresh, signing out", slog.String("error", err.Error()))
		m.clear()
		m.signalExpired()
		return
	}

	m.stateMu.Lock()
	m.user = user
	m.stateMu.Unlock()
	m.persist()
}

// HandleOAuthCallback completes a GitHub login from the provider's redirect
// query: access_token and refresh_token on success, error and
// error_description on denial.
//
// A provider error surfaces as AuthenticationError without touching the
// session. A redirect with neither tokens nor an error is a
// MissingTokenError. When the identity fetch after storing the tokens fails,
// the just-stored tokens are cleared as well: tokens that cannot fetch an
// identity are useless, so the session never keeps them.
func (m *Manager) HandleOAuthCallback(ctx context.Context, query url.Values) error {
	if errCode := query.Get("error"); errCode != "" {
		message := query.Get("error_description")
		if message == "" {
			message = errCode
		}
		return &AuthenticationError{Message: message}
	}

	accessToken := query.Get("access_token")
	refreshToken := query.Get("refresh_token")
	if accessToken == "" || refreshToken == "" {
		return &MissingTokenError{}
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setLoading(true)
	defer m.setLoading(false)

	m.stateMu.Lock()
	m.accessToken = accessToken
	m.refreshToken = refreshToken
	m.stateMu.Unlock()

	user, err := m.api.me(ctx, accessToken)
	if err != nil {
		m.clear()
		return err
	}

	m.stateMu.Lock()
	m.user = user
	m.stateMu.Unlock()
	m.persist()
	return nil
}

// WatchExternal reconciles the session when another process writes the
// credentials file: each detected change re-runs CheckAuth against the
// freshly loaded tokens. Blocks until ctx is cancelled.
func (m *Manager) WatchExternal(ctx context.Context, interval time.Duration) {
	for range m.store.Watch(ctx, interval) {
		creds, err := m.store.Load()
		if err != nil {
			m.logger.Warn("reloading credentials failed", slog.String("error", err.Error()))
			continue
		}

		m.stateMu.Lock()
		m.accessToken = creds.AccessToken
		m.refreshToken = creds.RefreshToken
		// Derived state is recomputed by CheckAuth, never trusted from the
		// file.
		m.user = nil
		m.stateMu.Unlock()

		m.CheckAuth(ctx)
	}
}

// commit atomically installs a fully authenticated session and persists it.
func (m *Manager) commit(user *User, accessToken, refreshToken string) {
	m.stateMu.Lock()
	m.user = user
	m.accessToken = accessToken
	m.refreshToken = refreshToken
	m.stateMu.Unlock()
	m.persist()
}

// clear resets the session to signed-out and removes the credentials file.
func (m *Manager) clear() {
	m.stateMu.Lock()
	m.user = nil
	m.accessToken = ""
	m.refreshToken = ""
	m.stateMu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.logger.Warn("clearing credentials failed", slog.String("error", err.Error()))
	}
}

func (m *Manager) persist() {
	m.stateMu.Lock()
	creds := &Credentials{
		AccessToken:  m.accessToken,
		RefreshToken: m.refreshToken,
		User:         m.user,
	}
	m.stateMu.Unlock()

	if err := m.store.Save(creds); err != nil {
		m.logger.Warn("persisting credentials failed", slog.String("error", err.Error()))
	}
}

func (m *Manager) setLoading(v bool) {
	m.stateMu.Lock()
	m.loading = v
	m.stateMu.Unlock()
}

func (m *Manager) snapshotAccessToken() string {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.accessToken
}

func (m *Manager) signalExpired() {
	select {
	case m.expired <- struct{}{}:
	default:
	}
}
