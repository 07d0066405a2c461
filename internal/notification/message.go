package notification

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stanstork/safeme-sync/internal/models"
)

const alertTimeLayout = "2006-01-02 15:04:05"

const urgencyFooter = "⚠️ IMMEDIATE RESPONSE REQUIRED ⚠️\n" +
	"This is an automated emergency alert that was sent offline and synced when connectivity was restored.\n" +
	"Please respond immediately."

// Banner picks the headline for an alert type.
func Banner(alertType string) string {
	t := strings.ToLower(alertType)
	switch {
	case strings.Contains(t, "personal"):
		return "🚨 PERSONAL SAFETY ALERT 🚨"
	case strings.Contains(t, "travel"):
		return "🚨 TRAVEL EMERGENCY ALERT 🚨"
	case strings.Contains(t, "medical"):
		return "🚨 MEDICAL EMERGENCY ALERT 🚨"
	default:
		return "🚨 EMERGENCY ALERT 🚨"
	}
}

// ComposeAlertMessage renders the email body for an alert.
func ComposeAlertMessage(rec models.AlertRecord) string {
	var sb strings.Builder

	sb.WriteString(Banner(rec.Type))
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("From: %s\n", rec.UserEmail))
	sb.WriteString(fmt.Sprintf("Time: %s\n\n", rec.Timestamp.Local().Format(alertTimeLayout)))

	sb.WriteString("📍 LOCATION:\n")
	if rec.HasCoordinates() {
		sb.WriteString(rec.Location + "\n")
		sb.WriteString(fmt.Sprintf("Coordinates: %s\n", Coordinates(*rec.Latitude, *rec.Longitude)))
		sb.WriteString(fmt.Sprintf("Google Maps: %s\n\n", MapsLink(*rec.Latitude, *rec.Longitude)))
	} else {
		sb.WriteString(fmt.Sprintf("Location: %s\n\n", rec.Location))
	}

	if rec.AdditionalMessage != "" {
		sb.WriteString(fmt.Sprintf("Message: %s\n\n", rec.AdditionalMessage))
	}

	sb.WriteString(urgencyFooter)
	return sb.String()
}

func Coordinates(lat, lon float64) string {
	return formatFloat(lat) + ", " + formatFloat(lon)
}

func MapsLink(lat, lon float64) string {
	return "https://www.google.com/maps?q=" + formatFloat(lat) + "," + formatFloat(lon)
}

// Subject is the email subject line for an alert.
func Subject(rec models.AlertRecord) string {
	t := strings.TrimSpace(rec.Type)
	if t == "" {
		t = "Emergency"
	}
	return fmt.Sprintf("[SafeMe] %s alert from %s", t, rec.UserEmail)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
