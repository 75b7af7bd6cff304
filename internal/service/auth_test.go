package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/echo/internal/apperror"
	"github.com/sakif/echo/internal/auth"
)

func newTestAuthService(t *testing.T) (*AuthService, *fakeUserRepo, *fakeSessionRepo) {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	// Cost 4 is bcrypt minimum; keeps tests fast.
	ps := auth.NewPasswordServiceForTest(4)

	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	return NewAuthService(users, sessions, ts, ps, testLogger()), users, sessions
}

func TestSignup(t *testing.T) {
	svc, _, sessions := newTestAuthService(t)

	result, err := svc.Signup(context.Background(), "new@example.com", "longenough", "New User", "test-agent")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	if result.User.ID == "" {
		t.Error("Signup() did not assign a user ID")
	}
	if result.User.PasswordHash == "longenough" {
		t.Error("Signup() stored the plaintext password")
	}
	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Error("Signup() did not issue a token pair")
	}
	if sessions.activeCount(result.User.ID) != 1 {
		t.Errorf("active sessions = %d, want 1", sessions.activeCount(result.User.ID))
	}
}

func TestSignup_Validation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"bad email", "not-an-email", "longenough"},
		{"empty email", "", "longenough"},
		{"short password", "ok@example.com", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Signup(context.Background(), tc.email, tc.password, "", "")
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Signup() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	if _, err := svc.Signup(context.Background(), "taken@example.com", "longenough", "", ""); err != nil {
		t.Fatalf("first Signup() error = %v", err)
	}

	_, err := svc.Signup(context.Background(), "taken@example.com", "longenough", "", "")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("second Signup() error = %v, want ErrConflict", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	signedUp, err := svc.Signup(context.Background(), "user@example.com", "correct-horse", "", "")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	result, err := svc.Login(context.Background(), "user@example.com", "correct-horse", "")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.ID != signedUp.User.ID {
		t.Errorf("Login() user = %q, want %q", result.User.ID, signedUp.User.ID)
	}
}

// Wrong password, unknown email, and an OAuth-only account must all fail the
// same way so callers cannot discover which emails have accounts.
func TestLogin_UniformFailure(t *testing.T) {
	svc, users, _ := newTestAuthService(t)

	if _, err := svc.Signup(context.Background(), "user@example.com", "correct-horse", "", ""); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	mustCreateUser(t, users, "oauth-only@example.com", "gho_token")

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "user@example.com", "wrong"},
		{"unknown email", "nobody@example.com", "whatever"},
		{"oauth-only account", "oauth-only@example.com", "whatever"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tc.email, tc.password, "")
			if !errors.Is(err, apperror.ErrUnauthorized) {
				t.Errorf("Login() error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	signedUp, err := svc.Signup(context.Background(), "user@example.com", "correct-horse", "", "")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	original := signedUp.Tokens.RefreshToken

	refreshed, err := svc.Refresh(context.Background(), original)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.Tokens.RefreshToken == original {
		t.Error("Refresh() did not rotate the refresh token")
	}

	// The original token is single-use: a second refresh with it must fail.
	if _, err := svc.Refresh(context.Background(), original); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Refresh() with used token error = %v, want ErrUnauthorized", err)
	}

	// The rotated token works.
	if _, err := svc.Refresh(context.Background(), refreshed.Tokens.RefreshToken); err != nil {
		t.Errorf("Refresh() with rotated token error = %v", err)
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	signedUp, err := svc.Signup(context.Background(), "user@example.com", "correct-horse", "", "")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	// An access token must never pass the refresh endpoint, even though it
	// is signed with the same secret.
	_, err = svc.Refresh(context.Background(), signedUp.Tokens.AccessToken)
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Refresh() with access token error = %v, want ErrUnauthorized", err)
	}
}

func TestLogout_RevokesRefresh(t *testing.T) {
	svc, _, sessions := newTestAuthService(t)

	signedUp, err := svc.Signup(context.Background(), "user@example.com", "correct-horse", "", "")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	if err := svc.Logout(context.Background(), signedUp.User.ID); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if n := sessions.activeCount(signedUp.User.ID); n != 0 {
		t.Errorf("active sessions after logout = %d, want 0", n)
	}
	if _, err := svc.Refresh(context.Background(), signedUp.Tokens.RefreshToken); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Refresh() after logout error = %v, want ErrUnauthorized", err)
	}
}

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	svc, users, _ := newTestAuthService(t)

	ghUser := &auth.GitHubUser{
		ID:          777,
		Login:       "octocat",
		Name:        "The Octocat",
		Email:       "Octo@Example.com",
		AvatarURL:   "https://example.com/octo.png",
		AccessToken: "gho_fresh",
	}

	result, err := svc.LoginOrRegisterGitHub(context.Background(), ghUser, "")
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}

	if result.User.GitHubID != 777 {
		t.Errorf("GitHubID = %d, want 777", result.User.GitHubID)
	}
	if result.User.Email != "octo@example.com" {
		t.Errorf("Email = %q, want lowercased", result.User.Email)
	}
	if result.User.DisplayName != "The Octocat" {
		t.Errorf("DisplayName = %q, want GitHub profile name", result.User.DisplayName)
	}

	stored, err := users.GetByGitHubID(context.Background(), 777)
	if err != nil {
		t.Fatalf("GetByGitHubID() error = %v", err)
	}
	if stored.GitHubToken != "gho_fresh" {
		t.Errorf("GitHubToken = %q, want %q", stored.GitHubToken, "gho_fresh")
	}
}

func TestLoginOrRegisterGitHub_LinksExistingEmailAccount(t *testing.T) {
	svc, users, _ := newTestAuthService(t)

	signedUp, err := svc.Signup(context.Background(), "same@example.com", "correct-horse", "Existing", "")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	ghUser := &auth.GitHubUser{
		ID:          888,
		Login:       "linker",
		Email:       "same@example.com",
		AccessToken: "gho_link",
	}
	result, err := svc.LoginOrRegisterGitHub(context.Background(), ghUser, "")
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}

	// Same account, now linked. No second user row.
	if result.User.ID != signedUp.User.ID {
		t.Errorf("linked user ID = %q, want %q", result.User.ID, signedUp.User.ID)
	}
	stored, err := users.GetByID(context.Background(), signedUp.User.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.GitHubID != 888 {
		t.Errorf("GitHubID = %d, want 888", stored.GitHubID)
	}
	if stored.PasswordHash == "" {
		t.Error("linking GitHub should not wipe the password hash")
	}
}

func TestLoginOrRegisterGitHub_RepeatLoginRefreshesProfile(t *testing.T) {
	svc, users, _ := newTestAuthService(t)

	first := &auth.GitHubUser{ID: 999, Login: "old-login", Email: "gh@example.com", AccessToken: "gho_old"}
	if _, err := svc.LoginOrRegisterGitHub(context.Background(), first, ""); err != nil {
		t.Fatalf("first login error = %v", err)
	}

	second := &auth.GitHubUser{ID: 999, Login: "new-login", Email: "gh@example.com", AccessToken: "gho_new"}
	result, err := svc.LoginOrRegisterGitHub(context.Background(), second, "")
	if err != nil {
		t.Fatalf("second login error = %v", err)
	}

	stored, err := users.GetByID(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.GitHubUsername != "new-login" {
		t.Errorf("GitHubUsername = %q, want %q", stored.GitHubUsername, "new-login")
	}
	if stored.GitHubToken != "gho_new" {
		t.Errorf("GitHubToken = %q, want refreshed token", stored.GitHubToken)
	}
}
