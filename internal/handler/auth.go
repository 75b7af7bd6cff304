package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/rs/xid"
	"github.com/sakif/echo/internal/auth"
	"github.com/sakif/echo/internal/model"
	"github.com/sakif/echo/internal/service"
)

// AuthHandler exposes signup, login, token refresh, and the GitHub OAuth
// flow.
//
// Browser-facing endpoints (the OAuth redirect pair) respond with redirects
// to the frontend; everything else is JSON consumed by API clients.
type AuthHandler struct {
	auth        *service.AuthService
	github      *auth.GitHubProvider
	frontendURL string
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. frontendURL is where the OAuth
// callback redirects with the issued tokens.
func NewAuthHandler(authSvc *service.AuthService, github *auth.GitHubProvider, frontendURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:        authSvc,
		github:      github,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// authResponse is the body returned by signup, login, and refresh.
type authResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	User         *model.User `json:"user"`
}

func newAuthResponse(result *service.AuthResult) authResponse {
	return authResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    "bearer",
		User:         result.User,
	}
}

// HandleSignup registers a new email/password account.
//
// HTTP: POST /api/auth/signup
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Signup(r.Context(), req.Email, req.Password, req.DisplayName, r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newAuthResponse(result))
}

// HandleLogin authenticates an email/password pair.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password, r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAuthResponse(result))
}

// HandleLogout revokes all of the caller's refresh tokens.
//
// HTTP: POST /api/auth/logout
// Auth: required
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authentication_error", Message: "authentication required"})
		return
	}

	if err := h.auth.Logout(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleRefresh exchanges a refresh token for a fresh pair.
//
// HTTP: POST /api/auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAuthResponse(result))
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /api/auth/me
// Auth: required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authentication_error", Message: "authentication required"})
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /api/auth/github
//
// A random state value goes into a short-lived HttpOnly cookie; the callback
// verifies it to prove the flow started here (CSRF protection).
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /api/auth/github/callback?code=xxx&state=yyy
//
// On success the browser is sent to
//
//	{frontend}/auth/callback?access_token=...&refresh_token=...
//
// and on failure to
//
//	{frontend}/auth/callback?error=...&error_description=...
//
// so the frontend's callback route always has something to show.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("oauth callback: state mismatch")
		h.redirectWithError(w, r, "invalid_state", "OAuth state did not match")
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{Name: "oauth_state", Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("oauth callback: authorization denied", slog.String("error", errParam))
		h.redirectWithError(w, r, errParam, r.URL.Query().Get("error_description"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectWithError(w, r, "missing_code", "GitHub did not return an authorization code")
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth callback: exchange failed", slog.String("error", err.Error()))
		h.redirectWithError(w, r, "exchange_failed", "could not verify the GitHub authorization")
		return
	}

	result, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser, r.UserAgent())
	if err != nil {
		h.logger.Error("oauth callback: login failed", slog.String("error", err.Error()))
		h.redirectWithError(w, r, "login_failed", "could not sign you in")
		return
	}

	q := url.Values{}
	q.Set("access_token", result.Tokens.AccessToken)
	q.Set("refresh_token", result.Tokens.RefreshToken)
	http.Redirect(w, r, h.frontendURL+"/auth/callback?"+q.Encode(), http.StatusSeeOther)
}

func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code, description string) {
	q := url.Values{}
	q.Set("error", code)
	if description != "" {
		q.Set("error_description", description)
	}
	http.Redirect(w, r, h.frontendURL+"/auth/callback?"+q.Encode(), http.StatusSeeOther)
}
