package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stanstork/safeme-sync/internal/models"
)

var (
	ErrAlertNotFound     = errors.New("alert not found")
	ErrMissingAlertID    = errors.New("alert id is required")
	ErrInvalidStatus     = errors.New("invalid alert status")
	ErrInvalidTransition = errors.New("synced alerts cannot change status")
)

// AlertStore is the local durable queue of alert records.
type AlertStore interface {
	Insert(ctx context.Context, rec models.AlertRecord) (models.AlertRecord, error)
	Update(ctx context.Context, rec models.AlertRecord) error
	Delete(ctx context.Context, id uint) error

	GetByID(ctx context.Context, id uint) (models.AlertRecord, error)
	GetByAlertID(ctx context.Context, alertID string) (models.AlertRecord, error)

	ListByUser(ctx context.Context, userID string) ([]models.AlertRecord, error)
	WatchByUser(ctx context.Context, userID string) <-chan []models.AlertRecord
	ListByStatus(ctx context.Context, status models.AlertStatus) ([]models.AlertRecord, error)
	ListPending(ctx context.Context) ([]models.AlertRecord, error)
	ListFailedForRetry(ctx context.Context, maxAttempts int) ([]models.AlertRecord, error)
	ListRecent(ctx context.Context, limit int) ([]models.AlertRecord, error)
	ListByTypeAndUser(ctx context.Context, alertType, userID string) ([]models.AlertRecord, error)
	ListWithLocation(ctx context.Context, userID string) ([]models.AlertRecord, error)

	CountByStatus(ctx context.Context, status models.AlertStatus) (int, error)
	CountPending(ctx context.Context) (int, error)
	WatchPendingCount(ctx context.Context) <-chan int
	CountAll(ctx context.Context) (int, error)
	CountByUser(ctx context.Context, userID string) (int, error)

	MarkStatus(ctx context.Context, id uint, status models.AlertStatus, at time.Time) error
	RecordFailedAttempt(ctx context.Context, id uint, at time.Time) error

	DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteFailedBefore(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error)

	Close() error
}

type alertStore struct {
	db     *gorm.DB
	hub    *changeHub
	logger zerolog.Logger
}

// New opens the store through connect and applies the schema.
func New(connect ConnectorFunc, logger zerolog.Logger) (AlertStore, error) {
	db, err := connect()
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&models.AlertRecord{}); err != nil {
		return nil, fmt.Errorf("migrate offline_alerts: %w", err)
	}
	return &alertStore{
		db:     db,
		hub:    newChangeHub(),
		logger: logger.With().Str("component", "alert_store").Logger(),
	}, nil
}

func (s *alertStore) Close() error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.Close()
}

func (s *alertStore) Insert(ctx context.Context, rec models.AlertRecord) (models.AlertRecord, error) {
	if rec.AlertID == "" {
		return models.AlertRecord{}, ErrMissingAlertID
	}
	if rec.Status == "" {
		rec.Status = models.AlertStatusPending
	}
	if !rec.Status.Valid() {
		return models.AlertRecord{}, fmt.Errorf("%w: %q", ErrInvalidStatus, rec.Status)
	}
	rec.ID = 0
	rec.Timestamp = normalizeTime(rec.Timestamp)

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return models.AlertRecord{}, fmt.Errorf("insert alert %s: %w", rec.AlertID, err)
	}
	s.hub.notify()
	return rec, nil
}

// Update rewrites the mutable columns of a record. alert_id, contacts_json,
// contacts_notified and timestamp are left untouched.
func (s *alertStore) Update(ctx context.Context, rec models.AlertRecord) error {
	if !rec.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, rec.Status)
	}
	res := s.db.WithContext(ctx).
		Model(&models.AlertRecord{}).
		Where("id = ?", rec.ID).
		Select("message", "additional_message", "location", "image_path", "status", "sync_attempts", "last_sync_attempt").
		Updates(&rec)
	if res.Error != nil {
		return fmt.Errorf("update alert %d: %w", rec.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlertNotFound
	}
	s.hub.notify()
	return nil
}

func (s *alertStore) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.AlertRecord{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete alert %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlertNotFound
	}
	s.hub.notify()
	return nil
}

func (s *alertStore) GetByID(ctx context.Context, id uint) (models.AlertRecord, error) {
	var rec models.AlertRecord
	err := s.db.WithContext(ctx).First(&rec, id).Error
	return rec, notFound(err)
}

func (s *alertStore) GetByAlertID(ctx context.Context, alertID string) (models.AlertRecord, error) {
	var rec models.AlertRecord
	err := s.db.WithContext(ctx).Where("alert_id = ?", alertID).First(&rec).Error
	return rec, notFound(err)
}

func (s *alertStore) ListByUser(ctx context.Context, userID string) ([]models.AlertRecord, error) {
	return s.list(ctx, s.db.Where("user_id = ?", userID).Order("timestamp DESC"))
}

func (s *alertStore) WatchByUser(ctx context.Context, userID string) <-chan []models.AlertRecord {
	return watch(ctx, s.hub, s.logger, func(ctx context.Context) ([]models.AlertRecord, error) {
		return s.ListByUser(ctx, userID)
	})
}

func (s *alertStore) ListByStatus(ctx context.Context, status models.AlertStatus) ([]models.AlertRecord, error) {
	return s.list(ctx, s.db.Where("status = ?", status).Order("timestamp DESC"))
}

// ListPending returns pending records oldest first.
func (s *alertStore) ListPending(ctx context.Context) ([]models.AlertRecord, error) {
	return s.list(ctx, s.db.Where("status = ?", models.AlertStatusPending).Order("timestamp ASC").Order("id ASC"))
}

// ListFailedForRetry returns failed records still under the attempt cap, oldest first.
func (s *alertStore) ListFailedForRetry(ctx context.Context, maxAttempts int) ([]models.AlertRecord, error) {
	return s.list(ctx, s.db.
		Where("status = ? AND sync_attempts < ?", models.AlertStatusFailed, maxAttempts).
		Order("timestamp ASC").Order("id ASC"))
}

func (s *alertStore) ListRecent(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.list(ctx, s.db.Order("timestamp DESC").Limit(limit))
}

func (s *alertStore) ListByTypeAndUser(ctx context.Context, alertType, userID string) ([]models.AlertRecord, error) {
	return s.list(ctx, s.db.Where("type = ? AND user_id = ?", alertType, userID).Order("timestamp DESC"))
}

func (s *alertStore) ListWithLocation(ctx context.Context, userID string) ([]models.AlertRecord, error) {
	return s.list(ctx, s.db.
		Where("user_id = ? AND latitude IS NOT NULL AND longitude IS NOT NULL", userID).
		Order("timestamp DESC"))
}

func (s *alertStore) CountByStatus(ctx context.Context, status models.AlertStatus) (int, error) {
	return s.count(ctx, s.db.Where("status = ?", status))
}

func (s *alertStore) CountPending(ctx context.Context) (int, error) {
	return s.CountByStatus(ctx, models.AlertStatusPending)
}

func (s *alertStore) WatchPendingCount(ctx context.Context) <-chan int {
	return watch(ctx, s.hub, s.logger, s.CountPending)
}

func (s *alertStore) CountAll(ctx context.Context) (int, error) {
	return s.count(ctx, s.db)
}

func (s *alertStore) CountByUser(ctx context.Context, userID string) (int, error) {
	return s.count(ctx, s.db.Where("user_id = ?", userID))
}

// MarkStatus sets status and last_sync_attempt in one statement. A synced
// record only accepts synced.
func (s *alertStore) MarkStatus(ctx context.Context, id uint, status models.AlertStatus, at time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	q := s.db.WithContext(ctx).Model(&models.AlertRecord{}).Where("id = ?", id)
	if status != models.AlertStatusSynced {
		q = q.Where("status <> ?", models.AlertStatusSynced)
	}
	res := q.Updates(map[string]interface{}{
		"status":            status,
		"last_sync_attempt": normalizeTime(at),
	})
	if res.Error != nil {
		return fmt.Errorf("mark alert %d %s: %w", id, status, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	s.hub.notify()
	return nil
}

// RecordFailedAttempt bumps sync_attempts, stamps last_sync_attempt and
// marks the record failed in one statement. Synced records are left alone.
func (s *alertStore) RecordFailedAttempt(ctx context.Context, id uint, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.AlertRecord{}).
		Where("id = ? AND status <> ?", id, models.AlertStatusSynced).
		Updates(map[string]interface{}{
			"status":            models.AlertStatusFailed,
			"sync_attempts":     gorm.Expr("sync_attempts + 1"),
			"last_sync_attempt": normalizeTime(at),
		})
	if res.Error != nil {
		return fmt.Errorf("record failed attempt for alert %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	s.hub.notify()
	return nil
}

func (s *alertStore) DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status = ? AND timestamp < ?", models.AlertStatusSynced, normalizeTime(cutoff)).
		Delete(&models.AlertRecord{})
	return s.afterBulkDelete(res)
}

func (s *alertStore) DeleteFailedBefore(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status = ? AND sync_attempts >= ? AND timestamp < ?", models.AlertStatusFailed, maxAttempts, normalizeTime(cutoff)).
		Delete(&models.AlertRecord{})
	return s.afterBulkDelete(res)
}

func (s *alertStore) afterBulkDelete(res *gorm.DB) (int64, error) {
	if res.Error != nil {
		return 0, fmt.Errorf("delete old alerts: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.hub.notify()
	}
	return res.RowsAffected, nil
}

func (s *alertStore) list(ctx context.Context, q *gorm.DB) ([]models.AlertRecord, error) {
	records := []models.AlertRecord{}
	if err := q.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query offline_alerts: %w", err)
	}
	return records, nil
}

func (s *alertStore) count(ctx context.Context, q *gorm.DB) (int, error) {
	var n int64
	if err := q.WithContext(ctx).Model(&models.AlertRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count offline_alerts: %w", err)
	}
	return int(n), nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAlertNotFound
	}
	return err
}

// normalizeTime stores instants in UTC at millisecond precision so that
// SQLite's text comparison orders them correctly.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
