package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/authz"
	"github.com/stanstork/safeme-sync/internal/repository"
)

type pushTokenRequest struct {
	Token string `json:"token"`
}

type PushTokenHandler struct {
	repo   repository.PushTokenRepository
	logger zerolog.Logger
}

func NewPushTokenHandler(repo repository.PushTokenRepository, logger zerolog.Logger) *PushTokenHandler {
	return &PushTokenHandler{
		repo:   repo,
		logger: logger.With().Str("handler", "push_token").Logger(),
	}
}

// Set stores the device push token on login or token refresh.
func (h *PushTokenHandler) Set(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	var req pushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return
	}
	if err := h.repo.SetPushToken(r.Context(), userID, strings.TrimSpace(req.Token)); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to save push token")
		http.Error(w, "Failed to save push token", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes the token on logout or account deletion.
func (h *PushTokenHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	if err := h.repo.DeletePushToken(r.Context(), userID); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to delete push token")
		http.Error(w, "Failed to delete push token", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
