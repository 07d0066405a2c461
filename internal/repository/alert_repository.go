package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/stanstork/safeme-sync/internal/models"
)

var ErrRemoteAlertNotFound = errors.New("remote alert not found")

// AlertRepository is the remote append-only alert store.
type AlertRepository interface {
	// Append writes alert once. A second append of the same alert id is a
	// no-op and reports inserted=false.
	Append(ctx context.Context, alert models.RemoteAlert) (bool, error)
	GetByAlertID(ctx context.Context, alertID string) (models.RemoteAlert, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.RemoteAlert, error)
}

type alertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) Append(ctx context.Context, alert models.RemoteAlert) (bool, error) {
	if strings.TrimSpace(alert.AlertID) == "" {
		return false, errors.New("alert id is required")
	}
	contacts := alert.Contacts
	if contacts == nil {
		contacts = []models.ContactSnapshotEntry{}
	}
	contactsRaw, err := json.Marshal(contacts)
	if err != nil {
		return false, errors.Wrap(err, "marshal contacts")
	}

	const query = `
		INSERT INTO safeme.emergency_alerts (
			alert_id, user_id, user_email, type, message, additional_message, alert_timestamp,
			latitude, longitude, location, contacts_notified, contacts, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (alert_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		alert.AlertID,
		alert.UserID,
		alert.UserEmail,
		alert.Type,
		alert.Message,
		alert.AdditionalMessage,
		alert.Timestamp,
		nullFloat(alert.Latitude),
		nullFloat(alert.Longitude),
		alert.Location,
		alert.ContactsNotified,
		contactsRaw,
		alert.Status,
	)
	if err != nil {
		return false, errors.Wrapf(err, "append alert %s", alert.AlertID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

func (r *alertRepository) GetByAlertID(ctx context.Context, alertID string) (models.RemoteAlert, error) {
	const query = `
		SELECT alert_id, user_id, user_email, type, message, additional_message, alert_timestamp,
		       latitude, longitude, location, contacts_notified, contacts, status
		FROM safeme.emergency_alerts
		WHERE alert_id = $1
	`
	alert, err := scanRemoteAlert(r.db.QueryRowContext(ctx, query, strings.TrimSpace(alertID)))
	if errors.Is(err, sql.ErrNoRows) {
		return models.RemoteAlert{}, ErrRemoteAlertNotFound
	}
	return alert, err
}

func (r *alertRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.RemoteAlert, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	const query = `
		SELECT alert_id, user_id, user_email, type, message, additional_message, alert_timestamp,
		       latitude, longitude, location, contacts_notified, contacts, status
		FROM safeme.emergency_alerts
		WHERE user_id = $1
		ORDER BY alert_timestamp DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(userID), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list remote alerts")
	}
	defer rows.Close()

	alerts := []models.RemoteAlert{}
	for rows.Next() {
		alert, err := scanRemoteAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

func scanRemoteAlert(scanner interface {
	Scan(dest ...interface{}) error
}) (models.RemoteAlert, error) {
	var (
		alert       models.RemoteAlert
		lat, lon    sql.NullFloat64
		contactsRaw []byte
	)
	if err := scanner.Scan(
		&alert.AlertID,
		&alert.UserID,
		&alert.UserEmail,
		&alert.Type,
		&alert.Message,
		&alert.AdditionalMessage,
		&alert.Timestamp,
		&lat,
		&lon,
		&alert.Location,
		&alert.ContactsNotified,
		&contactsRaw,
		&alert.Status,
	); err != nil {
		return models.RemoteAlert{}, err
	}

	if lat.Valid {
		v := lat.Float64
		alert.Latitude = &v
	}
	if lon.Valid {
		v := lon.Float64
		alert.Longitude = &v
	}
	alert.Contacts = []models.ContactSnapshotEntry{}
	if len(contactsRaw) > 0 {
		if err := json.Unmarshal(contactsRaw, &alert.Contacts); err != nil {
			return models.RemoteAlert{}, errors.Wrap(err, "decode contacts")
		}
	}
	return alert, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
