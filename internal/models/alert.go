package models

import (
	"time"
)

type AlertStatus string

const (
	AlertStatusPending AlertStatus = "pending"
	AlertStatusSynced  AlertStatus = "synced"
	AlertStatusFailed  AlertStatus = "failed"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusPending, AlertStatusSynced, AlertStatusFailed:
		return true
	}
	return false
}

// RemoteAlertStatus is the resolution state written with every remote alert.
const RemoteAlertStatus = "Unresolved"

// AlertRecord is a row of the local offline_alerts table. AlertID, ContactsJSON
// and Timestamp are fixed at creation and never rewritten.
type AlertRecord struct {
	ID                uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	AlertID           string      `gorm:"column:alert_id;not null;uniqueIndex" json:"alert_id"`
	UserID            string      `gorm:"column:user_id;index" json:"user_id"`
	UserEmail         string      `gorm:"column:user_email" json:"user_email"`
	Type              string      `gorm:"column:type" json:"type"`
	Message           string      `gorm:"column:message" json:"message"`
	AdditionalMessage string      `gorm:"column:additional_message" json:"additional_message"`
	Timestamp         time.Time   `gorm:"column:timestamp;index" json:"timestamp"`
	Latitude          *float64    `gorm:"column:latitude" json:"latitude,omitempty"`
	Longitude         *float64    `gorm:"column:longitude" json:"longitude,omitempty"`
	Location          string      `gorm:"column:location" json:"location"`
	ContactsNotified  int         `gorm:"column:contacts_notified" json:"contacts_notified"`
	ContactsJSON      string      `gorm:"column:contacts_json" json:"contacts_json"`
	Status            AlertStatus `gorm:"column:status;index;default:pending" json:"status"`
	ImagePath         *string     `gorm:"column:image_path" json:"image_path,omitempty"`
	SyncAttempts      int         `gorm:"column:sync_attempts;default:0" json:"sync_attempts"`
	LastSyncAttempt   *time.Time  `gorm:"column:last_sync_attempt" json:"last_sync_attempt,omitempty"`
}

func (AlertRecord) TableName() string {
	return "offline_alerts"
}

// HasCoordinates reports whether both latitude and longitude were captured.
func (r AlertRecord) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// AlertDraft is what a trigger (button press or shake) hands to the repository.
type AlertDraft struct {
	UserID            string
	UserEmail         string
	Type              string
	Message           string
	AdditionalMessage string
	Contacts          []ContactSnapshotEntry
	Latitude          *float64
	Longitude         *float64
	Location          string
	ImagePath         *string
}

// RemoteAlert is the flat record appended to the remote alert store.
type RemoteAlert struct {
	AlertID           string                 `json:"alertId"`
	UserID            string                 `json:"userId"`
	UserEmail         string                 `json:"userEmail"`
	Type              string                 `json:"type"`
	Message           string                 `json:"message"`
	AdditionalMessage string                 `json:"additionalMessage"`
	Timestamp         time.Time              `json:"timestamp"`
	Latitude          *float64               `json:"latitude"`
	Longitude         *float64               `json:"longitude"`
	Location          string                 `json:"location"`
	ContactsNotified  int                    `json:"contactsNotified"`
	Contacts          []ContactSnapshotEntry `json:"contacts"`
	Status            string                 `json:"status"`
}

// RemoteAlertFromRecord builds the remote payload from the values captured
// when the record was created.
func RemoteAlertFromRecord(rec AlertRecord) (RemoteAlert, error) {
	contacts, err := ParseContactSnapshot(rec.ContactsJSON)
	if err != nil {
		return RemoteAlert{}, err
	}
	return RemoteAlert{
		AlertID:           rec.AlertID,
		UserID:            rec.UserID,
		UserEmail:         rec.UserEmail,
		Type:              rec.Type,
		Message:           rec.Message,
		AdditionalMessage: rec.AdditionalMessage,
		Timestamp:         rec.Timestamp,
		Latitude:          rec.Latitude,
		Longitude:         rec.Longitude,
		Location:          rec.Location,
		ContactsNotified:  rec.ContactsNotified,
		Contacts:          contacts,
		Status:            RemoteAlertStatus,
	}, nil
}
