package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/authz"
	"github.com/stanstork/safeme-sync/internal/models"
	"github.com/stanstork/safeme-sync/internal/repository"
)

type ContactDirectory interface {
	List(ctx context.Context, userID string) ([]models.EmergencyContact, error)
	Add(ctx context.Context, contact models.EmergencyContact) (models.EmergencyContact, error)
	Remove(ctx context.Context, userID, contactID string) error
}

type ContactHandler struct {
	directory ContactDirectory
	logger    zerolog.Logger
}

func NewContactHandler(directory ContactDirectory, logger zerolog.Logger) *ContactHandler {
	return &ContactHandler{
		directory: directory,
		logger:    logger.With().Str("handler", "contact").Logger(),
	}
}

func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	contacts, err := h.directory.List(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list contacts")
		http.Error(w, "Failed to list contacts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"contacts": contacts})
}

func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	var contact models.EmergencyContact
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(contact.FullName) == "" {
		http.Error(w, "Full name is required", http.StatusBadRequest)
		return
	}
	switch contact.PriorityLevel {
	case "", models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
	default:
		http.Error(w, "Priority must be High, Medium or Low", http.StatusBadRequest)
		return
	}
	contact.ID = ""
	contact.UserID = userID

	created, err := h.directory.Add(r.Context(), contact)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create contact")
		http.Error(w, "Failed to create contact", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	contactID := strings.TrimSpace(mux.Vars(r)["id"])
	if err := h.directory.Remove(r.Context(), userID, contactID); err != nil {
		if errors.Is(err, repository.ErrContactNotFound) {
			http.Error(w, "Contact not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("contact_id", contactID).Msg("failed to delete contact")
		http.Error(w, "Failed to delete contact", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
