package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/stanstork/safeme-sync/internal/models"
)

var ErrContactNotFound = errors.New("emergency contact not found")

type ContactRepository interface {
	ListByUser(ctx context.Context, userID string) ([]models.EmergencyContact, error)
	Create(ctx context.Context, contact models.EmergencyContact) (models.EmergencyContact, error)
	Delete(ctx context.Context, userID, contactID string) error
}

type contactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) ContactRepository {
	return &contactRepository{db: db}
}

// ListByUser returns the user's contacts, highest priority first.
func (r *contactRepository) ListByUser(ctx context.Context, userID string) ([]models.EmergencyContact, error) {
	const query = `
		SELECT id, user_id, full_name, relationship, priority_level, phone_number, email,
		       sms_enabled, call_enabled, email_enabled, medical_info, notes, created_at
		FROM safeme.emergency_contacts
		WHERE user_id = $1
		ORDER BY CASE priority_level WHEN 'High' THEN 1 WHEN 'Medium' THEN 2 WHEN 'Low' THEN 3 ELSE 4 END,
		         created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(userID))
	if err != nil {
		return nil, errors.Wrap(err, "list emergency contacts")
	}
	defer rows.Close()

	contacts := []models.EmergencyContact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (r *contactRepository) Create(ctx context.Context, c models.EmergencyContact) (models.EmergencyContact, error) {
	if strings.TrimSpace(c.UserID) == "" || strings.TrimSpace(c.FullName) == "" {
		return models.EmergencyContact{}, errors.New("user id and full name are required")
	}
	if c.PriorityLevel == "" {
		c.PriorityLevel = models.PriorityMedium
	}

	const query = `
		INSERT INTO safeme.emergency_contacts (
			user_id, full_name, relationship, priority_level, phone_number, email,
			sms_enabled, call_enabled, email_enabled, medical_info, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, user_id, full_name, relationship, priority_level, phone_number, email,
		          sms_enabled, call_enabled, email_enabled, medical_info, notes, created_at
	`
	row := r.db.QueryRowContext(ctx, query,
		strings.TrimSpace(c.UserID),
		strings.TrimSpace(c.FullName),
		c.Relationship,
		c.PriorityLevel,
		strings.TrimSpace(c.PhoneNumber),
		strings.TrimSpace(c.Email),
		c.SMSEnabled,
		c.CallEnabled,
		c.EmailEnabled,
		c.MedicalInfo,
		c.Notes,
	)
	created, err := scanContact(row)
	if err != nil {
		return models.EmergencyContact{}, errors.Wrap(err, "create emergency contact")
	}
	return created, nil
}

func (r *contactRepository) Delete(ctx context.Context, userID, contactID string) error {
	const query = `DELETE FROM safeme.emergency_contacts WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, strings.TrimSpace(contactID), strings.TrimSpace(userID))
	if err != nil {
		return errors.Wrap(err, "delete emergency contact")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrContactNotFound
	}
	return nil
}

func scanContact(scanner interface {
	Scan(dest ...interface{}) error
}) (models.EmergencyContact, error) {
	var (
		c                   models.EmergencyContact
		relationship, phone sql.NullString
		email, medical      sql.NullString
		notes               sql.NullString
	)
	if err := scanner.Scan(
		&c.ID,
		&c.UserID,
		&c.FullName,
		&relationship,
		&c.PriorityLevel,
		&phone,
		&email,
		&c.SMSEnabled,
		&c.CallEnabled,
		&c.EmailEnabled,
		&medical,
		&notes,
		&c.CreatedAt,
	); err != nil {
		return models.EmergencyContact{}, err
	}
	c.Relationship = relationship.String
	c.PhoneNumber = phone.String
	c.Email = email.String
	c.MedicalInfo = medical.String
	c.Notes = notes.String
	return c, nil
}
