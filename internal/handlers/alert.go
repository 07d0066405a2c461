package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/alerts"
	"github.com/stanstork/safeme-sync/internal/authz"
	"github.com/stanstork/safeme-sync/internal/models"
	"github.com/stanstork/safeme-sync/internal/notification"
)

type AlertService interface {
	SaveAlert(ctx context.Context, draft models.AlertDraft) (alerts.SaveResult, error)
	ListAlertsForUser(ctx context.Context, userID string) ([]models.AlertRecord, error)
	GetPendingAlerts(ctx context.Context) ([]models.AlertRecord, error)
	GetAlert(ctx context.Context, id uint) (models.AlertRecord, error)
	DeleteAlert(ctx context.Context, id uint) error
}

type ContactLister interface {
	List(ctx context.Context, userID string) ([]models.EmergencyContact, error)
}

type RemoteAlertLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.RemoteAlert, error)
}

type SavedNotifier interface {
	NotifyAlertSaved(ctx context.Context, userID, alertID string, offline bool) error
}

type triggerAlertRequest struct {
	Type              string   `json:"type"`
	AdditionalMessage string   `json:"additional_message"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	Location          string   `json:"location"`
}

type AlertHandler struct {
	alerts   AlertService
	contacts ContactLister
	remote   RemoteAlertLister
	notifier SavedNotifier
	logger   zerolog.Logger
}

func NewAlertHandler(svc AlertService, contacts ContactLister, remote RemoteAlertLister, notifier SavedNotifier, logger zerolog.Logger) *AlertHandler {
	return &AlertHandler{
		alerts:   svc,
		contacts: contacts,
		remote:   remote,
		notifier: notifier,
		logger:   logger.With().Str("handler", "alert").Logger(),
	}
}

// Create triggers an emergency alert for the signed-in user.
func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	email, ok := authz.EmailFromRequest(r)
	if !ok {
		email = userID
	}

	var req triggerAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Type) == "" {
		http.Error(w, "Alert type is required", http.StatusBadRequest)
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		http.Error(w, "Latitude and longitude must be sent together", http.StatusBadRequest)
		return
	}

	contacts, err := h.contacts.List(r.Context(), userID)
	if err != nil {
		// The alert still goes out; it just reaches nobody by email.
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("emergency contacts unavailable")
	}

	draft := models.AlertDraft{
		UserID:            userID,
		UserEmail:         email,
		Type:              req.Type,
		AdditionalMessage: req.AdditionalMessage,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		Location:          req.Location,
		Contacts:          models.SnapshotContacts(contacts),
	}
	draft.Message = notification.ComposeAlertMessage(models.AlertRecord{
		Type:              draft.Type,
		UserEmail:         draft.UserEmail,
		AdditionalMessage: strings.TrimSpace(draft.AdditionalMessage),
		Timestamp:         time.Now(),
		Latitude:          draft.Latitude,
		Longitude:         draft.Longitude,
		Location:          draft.Location,
	})

	res, err := h.alerts.SaveAlert(r.Context(), draft)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to save alert")
		http.Error(w, "Failed to save alert", http.StatusInternalServerError)
		return
	}
	if err := h.notifier.NotifyAlertSaved(r.Context(), userID, res.AlertID, res.Offline); err != nil {
		h.logger.Warn().Err(err).Msg("failed to publish alert notification")
	}

	status := http.StatusCreated
	if res.Offline {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// List returns the user's locally queued alerts, newest first.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	recs, err := h.alerts.ListAlertsForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list alerts")
		http.Error(w, "Failed to list alerts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": recs})
}

func (h *AlertHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, ok := h.userPending(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": pending})
}

func (h *AlertHandler) CountPending(w http.ResponseWriter, r *http.Request) {
	pending, ok := h.userPending(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": len(pending)})
}

// History lists alerts already in the remote store.
func (h *AlertHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	remote, err := h.remote.ListByUser(r.Context(), userID, queryLimit(r, 50))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list remote alerts")
		http.Error(w, "Alert history unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": remote})
}

func (h *AlertHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid alert ID", http.StatusBadRequest)
		return
	}

	rec, err := h.alerts.GetAlert(r.Context(), uint(id))
	if err != nil || rec.UserID != userID {
		if err == nil || alerts.IsNotFound(err) {
			http.Error(w, "Alert not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Uint64("id", id).Msg("failed to load alert")
		http.Error(w, "Failed to delete alert", http.StatusInternalServerError)
		return
	}

	if err := h.alerts.DeleteAlert(r.Context(), rec.ID); err != nil {
		if alerts.IsNotFound(err) {
			http.Error(w, "Alert not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Uint64("id", id).Msg("failed to delete alert")
		http.Error(w, "Failed to delete alert", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Alert deleted"})
}

func (h *AlertHandler) userPending(w http.ResponseWriter, r *http.Request) ([]models.AlertRecord, bool) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return nil, false
	}
	all, err := h.alerts.GetPendingAlerts(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list pending alerts")
		http.Error(w, "Failed to list pending alerts", http.StatusInternalServerError)
		return nil, false
	}
	pending := make([]models.AlertRecord, 0, len(all))
	for _, rec := range all {
		if rec.UserID == userID {
			pending = append(pending, rec)
		}
	}
	return pending, true
}
