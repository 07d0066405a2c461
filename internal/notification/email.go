package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/stanstork/safeme-sync/internal/models"
)

// EmailMessage is one alert email for one contact.
type EmailMessage struct {
	ToEmail             string
	ContactName         string
	Subject             string
	Body                string
	LocationAddress     string
	LocationCoordinates string
	MapsLink            string
}

// EmailSender delivers a single email. A nil error means the provider
// accepted it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailDeliveryError reports a failed delivery to one recipient.
type EmailDeliveryError struct {
	ToEmail string
	Err     error
}

func (e *EmailDeliveryError) Error() string {
	return fmt.Sprintf("email to %s: %v", e.ToEmail, e.Err)
}

func (e *EmailDeliveryError) Unwrap() error {
	return e.Err
}

const defaultContactName = "Emergency Contact"

func buildEmailMessage(rec models.AlertRecord, contact models.ContactSnapshotEntry, body string) EmailMessage {
	name := strings.TrimSpace(contact.Name)
	if name == "" {
		name = defaultContactName
	}
	msg := EmailMessage{
		ToEmail:     strings.TrimSpace(contact.Email),
		ContactName: name,
		Subject:     Subject(rec),
		Body:        body,
	}
	if rec.HasCoordinates() {
		msg.LocationAddress = rec.Location
		msg.LocationCoordinates = Coordinates(*rec.Latitude, *rec.Longitude)
		msg.MapsLink = MapsLink(*rec.Latitude, *rec.Longitude)
	}
	return msg
}
