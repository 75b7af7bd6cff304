// Package auth provides JWT token generation, password hashing, and the
// GitHub OAuth provider for the Echo API.
//
// TOKEN MODEL:
// Every successful authentication issues a PAIR of tokens:
//   - access token: short-lived (15 min), sent as a Bearer header on API calls
//   - refresh token: long-lived (30 days), exchanged at /api/auth/refresh for
//     a fresh pair without re-entering credentials
//
// Both are HS256 JWTs signed with the same secret. A "typ" claim
// distinguishes them so an access token can never be replayed against the
// refresh endpoint and vice versa. Refresh tokens are additionally tracked
// server-side (hashed) so logout can revoke them — the JWT alone is not
// enough to refresh.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "echo"

	// TypeAccess and TypeRefresh are the values of the "typ" claim.
	TypeAccess  = "access"
	TypeRefresh = "refresh"

	// AccessTokenTTL and RefreshTokenTTL are the token lifetimes.
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// ErrTokenExpired is returned by Validate when the token's expiry has passed.
// Callers distinguish this from tampering so they can trigger a refresh.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens. The same
// secret must be used for both operations.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims is the JWT payload. It embeds jwt.RegisteredClaims (Subject,
// ExpiresAt, IssuedAt, Issuer) and adds the token type.
type claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// GenerateAccess creates a signed access token for the given userID.
func (s *TokenService) GenerateAccess(userID string) (string, error) {
	return s.generate(userID, TypeAccess, AccessTokenTTL)
}

// GenerateRefresh creates a signed refresh token for the given userID.
func (s *TokenService) GenerateRefresh(userID string) (string, error) {
	return s.generate(userID, TypeRefresh, RefreshTokenTTL)
}

// GenerateWithDuration creates an access token with a custom expiry.
// Used in tests to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	return s.generate(userID, TypeAccess, d)
}

func (s *TokenService) generate(userID, typ string, ttl time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", typ, err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string, checking that its "typ" claim
// matches wantType (TypeAccess or TypeRefresh). Returns the userID stored in
// the "sub" claim.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired
//   - Issuer matches (prevents tokens from other apps)
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
func (s *TokenService) Validate(tokenStr, wantType string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}

	if c.Type != wantType {
		return "", fmt.Errorf("auth: token type %q, want %q", c.Type, wantType)
	}

	userID := c.Subject
	if userID == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return userID, nil
}
