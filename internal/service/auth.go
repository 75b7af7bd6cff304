// Package service holds the business logic layer. It sits between the HTTP
// handlers and the repositories:
//
//	handler (HTTP) → service (rules) → repository (DB)
//	               ↘ auth (JWT, bcrypt, OAuth)
//
// Services never touch http.Request or http.ResponseWriter, and handlers
// never touch SQL. Everything here is testable with in-memory fakes.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/sakif/echo/internal/apperror"
	"github.com/sakif/echo/internal/auth"
	"github.com/sakif/echo/internal/model"
	"github.com/sakif/echo/internal/repository"
)

const minPasswordLength = 8

// AuthService implements signup, login, token refresh, and GitHub OAuth
// account linking.
type AuthService struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// TokenPair is an access/refresh token pair issued on successful
// authentication.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResult bundles the authenticated user with their new token pair so the
// handler can respond in one step.
type AuthResult struct {
	User   *model.User
	Tokens TokenPair
}

// Signup registers a new email/password account and signs the user in.
//
// Validation failures come back as apperror.ErrValidation with the offending
// field; a taken email comes back as apperror.ErrConflict (raised by the
// store's UNIQUE constraint, so there is no check-then-insert race).
func (s *AuthService) Signup(ctx context.Context, email, password, displayName, userAgent string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperror.ValidationFailed("email", "must be a valid email address")
	}
	if len(password) < minPasswordLength {
		return nil, apperror.ValidationFailed("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	user := &model.User{
		Email:              email,
		PasswordHash:       hash,
		DisplayName:        strings.TrimSpace(displayName),
		EmailNotifications: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))

	return s.issueTokens(ctx, user, userAgent)
}

// Login authenticates an email/password pair.
//
// Every failure path returns the same ErrUnauthorized message so a caller
// cannot discover which emails have accounts.
func (s *AuthService) Login(ctx context.Context, email, password, userAgent string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	// OAuth-only accounts have no password hash; they must sign in via
	// GitHub rather than reveal that the email exists.
	if user.PasswordHash == "" {
		return nil, apperror.Unauthorized("invalid email or password")
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.Unauthorized("invalid email or password")
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return s.issueTokens(ctx, user, userAgent)
}

// Logout revokes every active session the user has. Outstanding refresh
// tokens stop working immediately; access tokens simply age out.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.DeactivateByUser(ctx, userID); err != nil {
		return fmt.Errorf("service/auth: revoking sessions for %s: %w", userID, err)
	}
	s.logger.Info("user logged out", slog.String("userID", userID))
	return nil
}

// Refresh exchanges a valid refresh token for a fresh token pair.
//
// The token must pass two checks: the JWT itself must verify with typ
// "refresh", and its hash must match an active session row. Rotation swaps
// the session to the new token's hash, so a refresh token is single-use.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	userID, err := s.tokens.Validate(refreshToken, auth.TypeRefresh)
	if err != nil {
		return nil, apperror.Unauthorized("invalid refresh token")
	}

	session, err := s.sessions.GetByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("refresh token revoked")
		}
		return nil, fmt.Errorf("service/auth: looking up session: %w", err)
	}
	if session.UserID != userID {
		return nil, apperror.Unauthorized("invalid refresh token")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}

	tokens, err := s.generatePair(user.ID)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().UTC().Add(auth.RefreshTokenTTL)
	if err := s.sessions.Rotate(ctx, session.ID, hashToken(tokens.RefreshToken), expiresAt); err != nil {
		return nil, fmt.Errorf("service/auth: rotating session %s: %w", session.ID, err)
	}

	return &AuthResult{User: user, Tokens: tokens}, nil
}

// CurrentUser returns the user record for an authenticated request.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

// LoginOrRegisterGitHub completes the GitHub OAuth callback.
//
// Resolution order:
//  1. A user already linked to this GitHub ID logs straight in; their
//     profile fields and token are refreshed from the new grant.
//  2. Otherwise, an existing account with the same email gets the GitHub
//     identity linked to it.
//  3. Otherwise, a new account is created from the GitHub profile.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser, userAgent string) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user, err := s.users.GetByGitHubID(ctx, ghUser.ID)
	switch {
	case err == nil:
		user.GitHubUsername = ghUser.Login
		user.GitHubAvatarURL = ghUser.AvatarURL
		user.GitHubToken = ghUser.AccessToken
		if err := s.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: refreshing GitHub profile: %w", err)
		}

	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.linkOrCreateFromGitHub(ctx, ghUser)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("service/auth: looking up GitHub user %d: %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", ghUser.Login),
	)

	return s.issueTokens(ctx, user, userAgent)
}

func (s *AuthService) linkOrCreateFromGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*model.User, error) {
	email := strings.ToLower(ghUser.Email)

	existing, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		existing.GitHubID = ghUser.ID
		existing.GitHubUsername = ghUser.Login
		existing.GitHubAvatarURL = ghUser.AvatarURL
		existing.GitHubToken = ghUser.AccessToken
		if err := s.users.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("service/auth: linking GitHub account: %w", err)
		}
		return existing, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	displayName := ghUser.Name
	if displayName == "" {
		displayName = ghUser.Login
	}
	user := &model.User{
		Email:              email,
		DisplayName:        displayName,
		GitHubID:           ghUser.ID,
		GitHubUsername:     ghUser.Login,
		GitHubAvatarURL:    ghUser.AvatarURL,
		GitHubToken:        ghUser.AccessToken,
		EmailNotifications: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user from GitHub profile: %w", err)
	}
	return user, nil
}

// issueTokens generates a token pair and records the refresh token's hash as
// a new session row.
func (s *AuthService) issueTokens(ctx context.Context, user *model.User, userAgent string) (*AuthResult, error) {
	tokens, err := s.generatePair(user.ID)
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		UserID:           user.ID,
		RefreshTokenHash: hashToken(tokens.RefreshToken),
		UserAgent:        userAgent,
		IsActive:         true,
		ExpiresAt:        time.Now().UTC().Add(auth.RefreshTokenTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("service/auth: recording session: %w", err)
	}

	return &AuthResult{User: user, Tokens: tokens}, nil
}

func (s *AuthService) generatePair(userID string) (TokenPair, error) {
	access, err := s.tokens.GenerateAccess(userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("service/auth: generating access token: %w", err)
	}
	refresh, err := s.tokens.GenerateRefresh(userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("service/auth: generating refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// hashToken returns the SHA-256 hex digest of a token. Refresh tokens are
// stored hashed so a leaked database cannot be replayed against the API.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
