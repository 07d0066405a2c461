package repository

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stanstork/safeme-sync/internal/models"
)

func TestNotificationFilterMatches(t *testing.T) {
	u1 := "u1"
	u2 := "u2"
	readAt := time.Now()
	saved := models.Notification{
		UserID:    &u1,
		EventType: models.NotificationEventAlertSaved,
		Metadata:  json.RawMessage(`{"alert_id":"a-1","offline":true}`),
	}
	broadcast := models.Notification{EventType: models.NotificationEventSyncCompleted}
	read := models.Notification{UserID: &u1, EventType: models.NotificationEventSyncStarted, ReadAt: &readAt}
	foreign := models.Notification{UserID: &u2, EventType: models.NotificationEventAlertSaved}

	tests := []struct {
		name   string
		filter NotificationFilter
		notif  models.Notification
		want   bool
	}{
		{"own notification", NotificationFilter{UserID: "u1"}, saved, true},
		{"broadcast visible to all", NotificationFilter{UserID: "u1"}, broadcast, true},
		{"other user hidden", NotificationFilter{UserID: "u1"}, foreign, false},
		{"event included", NotificationFilter{UserID: "u1", Events: []models.NotificationEvent{models.NotificationEventSyncCompleted, models.NotificationEventAlertSaved}}, saved, true},
		{"event excluded", NotificationFilter{UserID: "u1", Events: []models.NotificationEvent{models.NotificationEventSyncCompleted}}, saved, false},
		{"alert scoped", NotificationFilter{UserID: "u1", AlertID: "a-1"}, saved, true},
		{"other alert", NotificationFilter{UserID: "u1", AlertID: "a-2"}, saved, false},
		{"alert scope drops sync events", NotificationFilter{UserID: "u1", AlertID: "a-1"}, broadcast, false},
		{"unread only skips read", NotificationFilter{UserID: "u1", UnreadOnly: true}, read, false},
		{"unread only keeps unread", NotificationFilter{UserID: "u1", UnreadOnly: true}, saved, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.notif))
		})
	}
}

func TestNotificationFilterLimit(t *testing.T) {
	assert.Equal(t, 25, NotificationFilter{}.limit())
	assert.Equal(t, 25, NotificationFilter{Limit: 500}.limit())
	assert.Equal(t, 10, NotificationFilter{Limit: 10}.limit())
}

func TestParseNotificationEvent(t *testing.T) {
	evt, err := models.ParseNotificationEvent(" Alert_Saved ")
	assert.NoError(t, err)
	assert.Equal(t, models.NotificationEventAlertSaved, evt)

	_, err = models.ParseNotificationEvent("alert_deleted")
	assert.Error(t, err)
}
