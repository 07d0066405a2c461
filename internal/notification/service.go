package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/models"
	"github.com/stanstork/safeme-sync/internal/repository"
)

type Event struct {
	UserID   string
	Event    models.NotificationEvent
	Severity models.NotificationSeverity
	Title    string
	Message  string
	Metadata map[string]interface{}
}

type Service interface {
	Publish(ctx context.Context, evt Event) (models.Notification, error)
	NotifySyncing(ctx context.Context, pending int) error
	NotifySyncSummary(ctx context.Context, synced, failed int) error
	NotifyAlertSaved(ctx context.Context, userID, alertID string, offline bool) error
	List(ctx context.Context, filter repository.NotificationFilter) ([]models.Notification, error)
	UnreadCounts(ctx context.Context, userID string) (map[models.NotificationEvent]int, error)
	MarkRead(ctx context.Context, userID, notificationID string) (models.Notification, error)
}

type service struct {
	repo      repository.NotificationRepository
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger, notifiers ...Notifier) Service {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &service{
		repo:      repo,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		notifiers: active,
	}
}

// Publish stores the notification and fans it out to every notifier. A store
// failure is logged and the notification is still delivered.
func (s *service) Publish(ctx context.Context, evt Event) (models.Notification, error) {
	if evt.Event == "" {
		return models.Notification{}, fmt.Errorf("event type is required")
	}
	if evt.Severity == "" {
		evt.Severity = models.NotificationSeverityInfo
	}
	title := strings.TrimSpace(evt.Title)
	if title == "" {
		title = string(evt.Event)
	}

	params := repository.CreateNotificationParams{
		Event:    evt.Event,
		Severity: evt.Severity,
		Title:    title,
		Message:  strings.TrimSpace(evt.Message),
		Metadata: evt.Metadata,
	}
	if uid := strings.TrimSpace(evt.UserID); uid != "" {
		params.UserID = &uid
	}

	notif, err := s.repo.Create(ctx, params)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", string(evt.Event)).Msg("failed to persist notification")
		notif, err = transientNotification(params)
		if err != nil {
			return models.Notification{}, err
		}
	}

	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, notif); err != nil {
			logNotifyError(s.logger, err, notifierChannelName(notifier), notif)
		}
	}
	return notif, nil
}

func (s *service) NotifySyncing(ctx context.Context, pending int) error {
	_, err := s.Publish(ctx, Event{
		Event:    models.NotificationEventSyncStarted,
		Title:    "🔄 Syncing Alerts",
		Message:  fmt.Sprintf("Syncing %d pending alert(s)...", pending),
		Metadata: map[string]interface{}{"pending": pending},
	})
	return err
}

func (s *service) NotifySyncSummary(ctx context.Context, synced, failed int) error {
	title := "✅ Alerts Synced Successfully"
	severity := models.NotificationSeverityInfo
	if failed > 0 {
		title = "⚠️ Alerts Sync Completed"
		severity = models.NotificationSeverityWarning
	}
	_, err := s.Publish(ctx, Event{
		Event:    models.NotificationEventSyncCompleted,
		Severity: severity,
		Title:    title,
		Message:  SyncSummaryText(synced, failed),
		Metadata: map[string]interface{}{
			"synced": synced,
			"failed": failed,
		},
	})
	return err
}

func (s *service) NotifyAlertSaved(ctx context.Context, userID, alertID string, offline bool) error {
	msg := "Alert sent successfully"
	if offline {
		msg = "Alert saved locally (offline). Will sync when online."
	}
	_, err := s.Publish(ctx, Event{
		UserID:   userID,
		Event:    models.NotificationEventAlertSaved,
		Title:    "Emergency alert",
		Message:  msg,
		Metadata: map[string]interface{}{"alert_id": alertID, "offline": offline},
	})
	return err
}

func (s *service) List(ctx context.Context, filter repository.NotificationFilter) ([]models.Notification, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) UnreadCounts(ctx context.Context, userID string) (map[models.NotificationEvent]int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID string) (models.Notification, error) {
	return s.repo.MarkRead(ctx, userID, notificationID)
}

func transientNotification(params repository.CreateNotificationParams) (models.Notification, error) {
	notif := models.Notification{
		ID:        uuid.NewString(),
		UserID:    params.UserID,
		EventType: params.Event,
		Severity:  params.Severity,
		Title:     params.Title,
		Message:   params.Message,
		CreatedAt: time.Now().UTC(),
	}
	if len(params.Metadata) > 0 {
		raw, err := json.Marshal(params.Metadata)
		if err != nil {
			return models.Notification{}, fmt.Errorf("marshal metadata: %w", err)
		}
		notif.Metadata = raw
	}
	return notif, nil
}

// SyncSummaryText is the body of the end-of-run notification.
func SyncSummaryText(synced, failed int) string {
	text := fmt.Sprintf("Synced: %d", synced)
	if failed > 0 {
		text += fmt.Sprintf(" | Failed: %d", failed)
	}
	return text
}

func notifierChannelName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}
