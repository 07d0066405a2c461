package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type NotificationSeverity string

const (
	NotificationSeverityInfo    NotificationSeverity = "info"
	NotificationSeverityWarning NotificationSeverity = "warning"
	NotificationSeverityError   NotificationSeverity = "error"
)

type NotificationEvent string

const (
	NotificationEventSyncStarted   NotificationEvent = "sync_started"
	NotificationEventSyncCompleted NotificationEvent = "sync_completed"
	NotificationEventAlertSaved    NotificationEvent = "alert_saved"
)

func ParseNotificationEvent(raw string) (NotificationEvent, error) {
	switch evt := NotificationEvent(strings.ToLower(strings.TrimSpace(raw))); evt {
	case NotificationEventSyncStarted, NotificationEventSyncCompleted, NotificationEventAlertSaved:
		return evt, nil
	default:
		return "", fmt.Errorf("unknown notification event %q", raw)
	}
}

// Notification is a device-level notification shown to the user.
type Notification struct {
	ID        string               `json:"id"`
	UserID    *string              `json:"user_id,omitempty"`
	EventType NotificationEvent    `json:"event_type"`
	Severity  NotificationSeverity `json:"severity"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Metadata  json.RawMessage      `json:"metadata,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	ReadAt    *time.Time           `json:"read_at,omitempty"`
}
