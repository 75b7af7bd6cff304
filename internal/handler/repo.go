package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/echo/internal/auth"
	"github.com/sakif/echo/internal/model"
	"github.com/sakif/echo/internal/service"
)

// RepoHandler exposes repository tracking: list/add/remove, on-demand sync,
// branch listing, settings, and webhook management.
//
// Every route here sits behind RequireAuth, so UserIDFromContext always
// succeeds; the guard clauses are just belt-and-braces.
type RepoHandler struct {
	repos *service.RepoService
	// webhookURL is the public delivery endpoint registered on GitHub when
	// a webhook is created without an explicit URL.
	webhookURL string
	logger     *slog.Logger
}

// NewRepoHandler creates a RepoHandler.
func NewRepoHandler(repos *service.RepoService, webhookURL string, logger *slog.Logger) *RepoHandler {
	return &RepoHandler{repos: repos, webhookURL: webhookURL, logger: logger}
}

func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authentication_error", Message: "authentication required"})
		return "", false
	}
	return userID, true
}

// HandleList returns the caller's tracked repositories.
//
// HTTP: GET /api/repositories
func (h *RepoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	repos, err := h.repos.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if repos == nil {
		repos = []model.Repository{}
	}

	writeJSON(w, http.StatusOK, repos)
}

// HandleAdd starts tracking a repository.
//
// HTTP: POST /api/repositories  {"full_name": "owner/repo"}
func (h *RepoHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		FullName string `json:"full_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	repo, err := h.repos.Add(r.Context(), userID, req.FullName)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, repo)
}

// HandleGet returns one tracked repository.
//
// HTTP: GET /api/repositories/{repoID}
func (h *RepoHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	repo, err := h.repos.Get(r.Context(), userID, chi.URLParam(r, "repoID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, repo)
}

// HandleDelete stops tracking a repository.
//
// HTTP: DELETE /api/repositories/{repoID}
func (h *RepoHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.repos.Delete(r.Context(), userID, chi.URLParam(r, "repoID")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSync refreshes a repository's metadata from GitHub now.
//
// HTTP: POST /api/repositories/{repoID}/sync
func (h *RepoHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	repo, err := h.repos.Sync(r.Context(), userID, chi.URLParam(r, "repoID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, repo)
}

// HandleBranches lists the repository's branches live from GitHub.
//
// HTTP: GET /api/repositories/{repoID}/branches
func (h *RepoHandler) HandleBranches(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	branches, err := h.repos.Branches(r.Context(), userID, chi.URLParam(r, "repoID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, branches)
}

// HandleGetSettings returns the repository's settings.
//
// HTTP: GET /api/repositories/{repoID}/settings
func (h *RepoHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	settings, err := h.repos.GetSettings(r.Context(), userID, chi.URLParam(r, "repoID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

// HandleUpdateSettings applies a partial settings update. Absent fields are
// left unchanged.
//
// HTTP: PATCH /api/repositories/{repoID}/settings
func (h *RepoHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var patch service.SettingsPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, err)
		return
	}

	settings, err := h.repos.UpdateSettings(r.Context(), userID, chi.URLParam(r, "repoID"), patch)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

// HandleListWebhooks returns the repository's registered webhooks.
//
// HTTP: GET /api/repositories/{repoID}/webhooks
func (h *RepoHandler) HandleListWebhooks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	hooks, err := h.repos.ListWebhooks(r.Context(), userID, chi.URLParam(r, "repoID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if hooks == nil {
		hooks = []model.Webhook{}
	}

	writeJSON(w, http.StatusOK, hooks)
}

// HandleCreateWebhook registers a webhook on GitHub for this repository.
// The URL and event list are optional; they default to this server's ingest
// endpoint and the standard event set.
//
// HTTP: POST /api/repositories/{repoID}/webhooks
func (h *RepoHandler) HandleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		URL    string   `json:"url"`
		Events []string `json:"events"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.URL == "" {
		req.URL = h.webhookURL
	}

	hook, err := h.repos.CreateWebhook(r.Context(), userID, chi.URLParam(r, "repoID"), req.URL, req.Events)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, hook)
}

// HandleDeleteWebhook removes a webhook from GitHub and locally.
//
// HTTP: DELETE /api/repositories/{repoID}/webhooks/{hookID}
func (h *RepoHandler) HandleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	err := h.repos.DeleteWebhook(r.Context(), userID, chi.URLParam(r, "repoID"), chi.URLParam(r, "hookID"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
