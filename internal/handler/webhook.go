package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/echo/internal/apperror"
	"github.com/sakif/echo/internal/github"
	"github.com/sakif/echo/internal/service"
)

// maxWebhookPayload bounds incoming delivery bodies. GitHub caps payloads at
// 25 MB; anything bigger is hostile.
const maxWebhookPayload = 25 << 20

// WebhookHandler receives webhook deliveries from GitHub.
//
// This endpoint is unauthenticated in the Bearer-token sense: the caller is
// GitHub, not a user. Authenticity comes from the HMAC signature header,
// verified against the secrets stored when each webhook was registered.
type WebhookHandler struct {
	repos  *service.RepoService
	logger *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(repos *service.RepoService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{repos: repos, logger: logger}
}

// HandleGitHubEvent processes one delivery.
//
// HTTP: POST /api/webhooks/github
//
// Deliveries for repositories nobody tracks get a 200 so GitHub does not
// retry or flag the hook; there is simply nothing to do with them. A bad
// signature is a 401: someone who knows the URL but not the secret.
func (h *WebhookHandler) HandleGitHubEvent(w http.ResponseWriter, r *http.Request) {
	event := r.Header.Get("X-GitHub-Event")
	if event == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "missing X-GitHub-Event header"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookPayload))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "could not read payload"})
		return
	}

	// ping arrives right after hook creation, before we may even have the
	// repository row. Always acknowledge it.
	if event == "ping" {
		writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
		return
	}

	var envelope struct {
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Repository.FullName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "payload has no repository"})
		return
	}

	repo, err := h.repos.FindByFullName(r.Context(), envelope.Repository.FullName)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			h.logger.Debug("delivery for untracked repository",
				slog.String("repo", envelope.Repository.FullName))
			writeJSON(w, http.StatusOK, map[string]string{"message": "repository not tracked"})
			return
		}
		writeError(w, err)
		return
	}

	hooks, err := h.repos.ActiveWebhooks(r.Context(), repo.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	// Multiple hooks can point at this endpoint; the delivery is valid if
	// any of their secrets signs the payload.
	signature := r.Header.Get("X-Hub-Signature-256")
	var matched string
	for _, hook := range hooks {
		if github.VerifySignature(payload, signature, hook.Secret) {
			matched = hook.ID
			break
		}
	}
	if matched == "" {
		h.logger.Warn("webhook delivery failed signature check",
			slog.String("repo", repo.FullName),
			slog.String("event", event),
		)
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authentication_error", Message: "invalid signature"})
		return
	}

	if err := h.repos.IngestEvent(r.Context(), repo, matched, event, payload); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "event processed"})
}
