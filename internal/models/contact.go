package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrInvalidContactSnapshot = errors.New("invalid contact snapshot")

type PriorityLevel string

const (
	PriorityHigh   PriorityLevel = "High"
	PriorityMedium PriorityLevel = "Medium"
	PriorityLow    PriorityLevel = "Low"
)

// Rank orders priorities for notification: High first, unknown values last.
func (p PriorityLevel) Rank() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// EmergencyContact is owned by the remote contacts directory.
type EmergencyContact struct {
	ID            string        `json:"id" db:"id"`
	UserID        string        `json:"user_id" db:"user_id"`
	FullName      string        `json:"full_name" db:"full_name"`
	Relationship  string        `json:"relationship" db:"relationship"`
	PriorityLevel PriorityLevel `json:"priority_level" db:"priority_level"`
	PhoneNumber   string        `json:"phone_number" db:"phone_number"`
	Email         string        `json:"email" db:"email"`
	SMSEnabled    bool          `json:"sms_enabled" db:"sms_enabled"`
	CallEnabled   bool          `json:"call_enabled" db:"call_enabled"`
	EmailEnabled  bool          `json:"email_enabled" db:"email_enabled"`
	MedicalInfo   string        `json:"medical_info" db:"medical_info"`
	Notes         string        `json:"notes" db:"notes"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// SortByPriority sorts contacts in notification order, keeping the input
// order among contacts of equal priority.
func SortByPriority(contacts []EmergencyContact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].PriorityLevel.Rank() < contacts[j].PriorityLevel.Rank()
	})
}

// ContactSnapshotEntry is one recipient frozen into an alert at creation time.
type ContactSnapshotEntry struct {
	Name     string        `json:"name"`
	Phone    string        `json:"phone"`
	Email    string        `json:"email"`
	Priority PriorityLevel `json:"priority"`
}

func (e ContactSnapshotEntry) HasEmail() bool {
	return strings.TrimSpace(e.Email) != ""
}

// SnapshotContacts freezes the given contacts into snapshot entries.
func SnapshotContacts(contacts []EmergencyContact) []ContactSnapshotEntry {
	entries := make([]ContactSnapshotEntry, 0, len(contacts))
	for _, c := range contacts {
		entries = append(entries, ContactSnapshotEntry{
			Name:     c.FullName,
			Phone:    c.PhoneNumber,
			Email:    strings.TrimSpace(c.Email),
			Priority: c.PriorityLevel,
		})
	}
	return entries
}

// EncodeContactSnapshot serialises entries for the contacts_json column.
func EncodeContactSnapshot(entries []ContactSnapshotEntry) (string, error) {
	if entries == nil {
		entries = []ContactSnapshotEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode contact snapshot: %w", err)
	}
	return string(raw), nil
}

// ParseContactSnapshot decodes a frozen contact list. An empty string is an
// empty list; anything that is not a JSON array of contact objects with a
// name is rejected.
func ParseContactSnapshot(raw string) ([]ContactSnapshotEntry, error) {
	if strings.TrimSpace(raw) == "" {
		return []ContactSnapshotEntry{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()

	var entries []ContactSnapshotEntry
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContactSnapshot, err)
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: not a list", ErrInvalidContactSnapshot)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", ErrInvalidContactSnapshot, i)
		}
	}
	return entries, nil
}

// EmailRecipients returns the entries with a non-blank email, in priority order.
func EmailRecipients(entries []ContactSnapshotEntry) []ContactSnapshotEntry {
	out := make([]ContactSnapshotEntry, 0, len(entries))
	for _, e := range entries {
		if e.HasEmail() {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() < out[j].Priority.Rank()
	})
	return out
}
