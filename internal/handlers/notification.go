package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/authz"
	"github.com/stanstork/safeme-sync/internal/models"
	"github.com/stanstork/safeme-sync/internal/notification"
	"github.com/stanstork/safeme-sync/internal/repository"
)

type NotificationHandler struct {
	service notification.Service
	logger  zerolog.Logger
}

func NewNotificationHandler(service notification.Service, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("handler", "notification").Logger(),
	}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	filter, err := notificationFilter(r, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	notifications, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list notifications")
		http.Error(w, "Failed to list notifications", http.StatusInternalServerError)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
	})
}

func (h *NotificationHandler) UnreadCounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	counts, err := h.service.UnreadCounts(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to count unread notifications")
		http.Error(w, "Failed to count notifications", http.StatusInternalServerError)
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":    total,
		"by_event": counts,
	})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	notificationID := mux.Vars(r)["notificationID"]
	if _, err := uuid.Parse(notificationID); err != nil {
		http.Error(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}

	notif, err := h.service.MarkRead(r.Context(), userID, notificationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("notification_id", notificationID).Msg("failed to mark notification read")
		http.Error(w, "Failed to update notification", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, notif)
}

// notificationFilter reads ?event=a,b&alert_id=&unread=true&limit= from the request.
func notificationFilter(r *http.Request, userID string) (repository.NotificationFilter, error) {
	q := r.URL.Query()
	filter := repository.NotificationFilter{
		UserID:  userID,
		AlertID: strings.TrimSpace(q.Get("alert_id")),
		Limit:   queryLimit(r, 25),
	}
	for _, raw := range q["event"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			evt, err := models.ParseNotificationEvent(part)
			if err != nil {
				return repository.NotificationFilter{}, err
			}
			filter.Events = append(filter.Events, evt)
		}
	}
	if raw := strings.TrimSpace(q.Get("unread")); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			return repository.NotificationFilter{}, errors.New("unread must be a boolean")
		}
		filter.UnreadOnly = unread
	}
	return filter, nil
}

func queryLimit(r *http.Request, fallback int) int {
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
