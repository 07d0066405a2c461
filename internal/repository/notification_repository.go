package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/stanstork/safeme-sync/internal/models"
)

type NotificationRepository interface {
	Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error)
	List(ctx context.Context, filter NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (map[models.NotificationEvent]int, error)
	MarkRead(ctx context.Context, userID, notificationID string) (models.Notification, error)
}

// NotificationFilter narrows a user's notification feed. Zero fields do not
// filter. AlertID matches the alert_id carried in the metadata of alert_saved
// notifications.
type NotificationFilter struct {
	UserID     string
	Events     []models.NotificationEvent
	AlertID    string
	UnreadOnly bool
	Limit      int
}

func (f NotificationFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 100 {
		return 25
	}
	return f.Limit
}

// Matches reports whether n passes the filter, ignoring Limit. It mirrors the
// WHERE clause of List.
func (f NotificationFilter) Matches(n models.Notification) bool {
	if n.UserID != nil && *n.UserID != strings.TrimSpace(f.UserID) {
		return false
	}
	if f.UnreadOnly && n.ReadAt != nil {
		return false
	}
	if len(f.Events) > 0 {
		found := false
		for _, evt := range f.Events {
			if evt == n.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if alertID := strings.TrimSpace(f.AlertID); alertID != "" {
		var meta struct {
			AlertID string `json:"alert_id"`
		}
		if len(n.Metadata) == 0 || json.Unmarshal(n.Metadata, &meta) != nil || meta.AlertID != alertID {
			return false
		}
	}
	return true
}

func (f NotificationFilter) eventNames() []string {
	names := make([]string, 0, len(f.Events))
	for _, evt := range f.Events {
		names = append(names, string(evt))
	}
	return names
}

type notificationRepository struct {
	db *sql.DB
}

// CreateNotificationParams describes a device notification. A nil UserID
// addresses every user of the device.
type CreateNotificationParams struct {
	UserID   *string
	Event    models.NotificationEvent
	Severity models.NotificationSeverity
	Title    string
	Message  string
	Metadata map[string]interface{}
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error) {
	const query = `
		INSERT INTO safeme.notifications (user_id, event_type, severity, title, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, event_type, severity, title, message, metadata, created_at, read_at
	`

	var userID interface{}
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		userID = strings.TrimSpace(*params.UserID)
	}

	var metadata interface{}
	if len(params.Metadata) > 0 {
		bytes, err := json.Marshal(params.Metadata)
		if err != nil {
			return models.Notification{}, fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = bytes
	}

	row := r.db.QueryRowContext(ctx, query, userID, params.Event, params.Severity, params.Title, params.Message, metadata)
	return scanNotification(row)
}

// List returns the newest notifications for the filter's user plus those
// addressed to everyone.
func (r *notificationRepository) List(ctx context.Context, filter NotificationFilter) ([]models.Notification, error) {
	const query = `
		SELECT id, user_id, event_type, severity, title, message, metadata, created_at, read_at
		FROM safeme.notifications
		WHERE (user_id IS NULL OR user_id = $1)
		  AND (cardinality($2::text[]) = 0 OR event_type = ANY($2::text[]))
		  AND ($3::text = '' OR metadata->>'alert_id' = $3::text)
		  AND (NOT $4::boolean OR read_at IS NULL)
		ORDER BY created_at DESC
		LIMIT $5
	`

	rows, err := r.db.QueryContext(ctx, query,
		strings.TrimSpace(filter.UserID),
		pq.Array(filter.eventNames()),
		strings.TrimSpace(filter.AlertID),
		filter.UnreadOnly,
		filter.limit(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notif)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

// CountUnread returns the unread notifications visible to userID grouped by event type.
func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (map[models.NotificationEvent]int, error) {
	const query = `
		SELECT event_type, COUNT(*)
		FROM safeme.notifications
		WHERE (user_id IS NULL OR user_id = $1) AND read_at IS NULL
		GROUP BY event_type
	`

	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.NotificationEvent]int)
	for rows.Next() {
		var (
			evt   models.NotificationEvent
			count int
		)
		if err := rows.Scan(&evt, &count); err != nil {
			return nil, err
		}
		counts[evt] = count
	}
	return counts, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, notificationID string) (models.Notification, error) {
	const query = `
		UPDATE safeme.notifications
		SET read_at = NOW()
		WHERE id = $1 AND (user_id IS NULL OR user_id = $2)
		RETURNING id, user_id, event_type, severity, title, message, metadata, created_at, read_at
	`
	row := r.db.QueryRowContext(ctx, query, strings.TrimSpace(notificationID), strings.TrimSpace(userID))
	return scanNotification(row)
}

func scanNotification(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Notification, error) {
	var (
		notif       models.Notification
		userID      sql.NullString
		metadataRaw []byte
		readAt      sql.NullTime
	)

	if err := scanner.Scan(
		&notif.ID,
		&userID,
		&notif.EventType,
		&notif.Severity,
		&notif.Title,
		&notif.Message,
		&metadataRaw,
		&notif.CreatedAt,
		&readAt,
	); err != nil {
		return models.Notification{}, err
	}

	if userID.Valid {
		val := userID.String
		notif.UserID = &val
	}
	if len(metadataRaw) > 0 {
		notif.Metadata = metadataRaw
	}
	if readAt.Valid {
		t := readAt.Time
		notif.ReadAt = &t
	}

	return notif, nil
}
