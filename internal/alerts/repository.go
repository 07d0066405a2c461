package alerts

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/metrics"
	"github.com/stanstork/safeme-sync/internal/models"
	"github.com/stanstork/safeme-sync/internal/notification"
	"github.com/stanstork/safeme-sync/internal/store"
)

const (
	MessageSentOnline   = "Alert sent successfully"
	MessageSavedOffline = "Alert saved locally (offline). Will sync when online."

	recentAlertsLimit = 100

	// localWriteTimeout bounds local bookkeeping that must outlive the caller's context.
	localWriteTimeout = 5 * time.Second
)

type Connectivity interface {
	Reachable(ctx context.Context) bool
}

// RemoteStore is the append-only remote alert collection.
type RemoteStore interface {
	Append(ctx context.Context, alert models.RemoteAlert) (bool, error)
}

type AlertDispatcher interface {
	Dispatch(ctx context.Context, rec models.AlertRecord) (notification.DispatchResult, error)
}

type Config struct {
	MaxSyncAttempts int
	PushTimeout     time.Duration
}

// SaveResult tells the caller which path an alert took.
type SaveResult struct {
	AlertID  string                       `json:"alert_id"`
	Offline  bool                         `json:"offline"`
	Message  string                       `json:"message"`
	Dispatch *notification.DispatchResult `json:"dispatch,omitempty"`
}

// Repository is the single entry point for saving, querying and syncing alerts.
type Repository struct {
	store      store.AlertStore
	remote     RemoteStore
	network    Connectivity
	dispatcher AlertDispatcher
	cfg        Config
	logger     zerolog.Logger
	now        func() time.Time
}

func NewRepository(st store.AlertStore, remote RemoteStore, network Connectivity, dispatcher AlertDispatcher, cfg Config, logger zerolog.Logger) *Repository {
	if cfg.MaxSyncAttempts <= 0 {
		cfg.MaxSyncAttempts = 3
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 15 * time.Second
	}
	return &Repository{
		store:      st,
		remote:     remote,
		network:    network,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger.With().Str("component", "alert_repository").Logger(),
		now:        time.Now,
	}
}

// SaveAlert pushes the alert straight to the remote store when online and
// emails the contacts; otherwise, or if the push fails, it queues the alert
// locally as pending.
func (r *Repository) SaveAlert(ctx context.Context, draft models.AlertDraft) (SaveResult, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return SaveResult{}, err
	}
	contactsJSON, err := models.EncodeContactSnapshot(draft.Contacts)
	if err != nil {
		return SaveResult{}, err
	}

	rec := models.AlertRecord{
		AlertID:           id.String(),
		UserID:            draft.UserID,
		UserEmail:         draft.UserEmail,
		Type:              strings.TrimSpace(draft.Type),
		Message:           draft.Message,
		AdditionalMessage: strings.TrimSpace(draft.AdditionalMessage),
		Timestamp:         r.now().UTC().Truncate(time.Millisecond),
		Latitude:          draft.Latitude,
		Longitude:         draft.Longitude,
		Location:          draft.Location,
		ContactsNotified:  len(draft.Contacts),
		ContactsJSON:      contactsJSON,
		Status:            models.AlertStatusPending,
		ImagePath:         draft.ImagePath,
	}
	log := r.logger.With().Str("alert_id", rec.AlertID).Str("user_id", rec.UserID).Logger()

	if r.network.Reachable(ctx) {
		err := r.push(ctx, rec)
		if err == nil {
			metrics.AlertsSaved.WithLabelValues("online").Inc()
			log.Info().Msg("Alert pushed to remote store")
			return r.dispatchOnline(ctx, rec, log), nil
		}
		log.Warn().Err(err).Msg("Online push failed, queueing alert locally")
	}

	wctx, cancel := localWriteContext(ctx)
	defer cancel()
	if _, err := r.store.Insert(wctx, rec); err != nil {
		log.Error().Err(err).Msg("Failed to queue alert locally")
		return SaveResult{}, localErr("save", err)
	}
	metrics.AlertsSaved.WithLabelValues("offline").Inc()
	log.Info().Msg("Alert queued locally")
	return SaveResult{AlertID: rec.AlertID, Offline: true, Message: MessageSavedOffline}, nil
}

func (r *Repository) dispatchOnline(ctx context.Context, rec models.AlertRecord, log zerolog.Logger) SaveResult {
	res := SaveResult{AlertID: rec.AlertID, Message: MessageSentOnline}
	if r.dispatcher == nil {
		return res
	}
	dr, err := r.dispatcher.Dispatch(ctx, rec)
	if err != nil {
		log.Warn().Err(err).Msg("Alert dispatch failed")
		return res
	}
	res.Dispatch = &dr
	return res
}

// GetPendingAlerts returns pending records oldest first.
func (r *Repository) GetPendingAlerts(ctx context.Context) ([]models.AlertRecord, error) {
	recs, err := r.store.ListPending(ctx)
	return recs, localErr("list pending", err)
}

func (r *Repository) GetPendingAlertsCount(ctx context.Context) (int, error) {
	n, err := r.store.CountPending(ctx)
	return n, localErr("count pending", err)
}

// CountPending lets the repository stand in wherever only a pending count is needed.
func (r *Repository) CountPending(ctx context.Context) (int, error) {
	return r.GetPendingAlertsCount(ctx)
}

// GetFailedAlertsForRetry returns failed records still under the attempt cap, oldest first.
func (r *Repository) GetFailedAlertsForRetry(ctx context.Context) ([]models.AlertRecord, error) {
	recs, err := r.store.ListFailedForRetry(ctx, r.cfg.MaxSyncAttempts)
	return recs, localErr("list failed", err)
}

// GetSyncCandidates merges pending and retryable failed records into one
// oldest-first list.
func (r *Repository) GetSyncCandidates(ctx context.Context) ([]models.AlertRecord, error) {
	pending, err := r.GetPendingAlerts(ctx)
	if err != nil {
		return nil, err
	}
	failed, err := r.GetFailedAlertsForRetry(ctx)
	if err != nil {
		return nil, err
	}
	all := append(pending, failed...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].ID < all[j].ID
		}
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all, nil
}

// GetAllAlertsForUser streams the user's alerts, newest first, until ctx is cancelled.
func (r *Repository) GetAllAlertsForUser(ctx context.Context, userID string) <-chan []models.AlertRecord {
	return r.store.WatchByUser(ctx, userID)
}

func (r *Repository) ListAlertsForUser(ctx context.Context, userID string) ([]models.AlertRecord, error) {
	recs, err := r.store.ListByUser(ctx, userID)
	return recs, localErr("list by user", err)
}

func (r *Repository) GetAllAlerts(ctx context.Context) ([]models.AlertRecord, error) {
	recs, err := r.store.ListRecent(ctx, recentAlertsLimit)
	return recs, localErr("list recent", err)
}

func (r *Repository) GetAlert(ctx context.Context, id uint) (models.AlertRecord, error) {
	rec, err := r.store.GetByID(ctx, id)
	return rec, localErr("get", err)
}

func (r *Repository) UpdateAlertStatus(ctx context.Context, id uint, status models.AlertStatus) error {
	return localErr("update status", r.store.MarkStatus(ctx, id, status, r.now()))
}

// SyncAlert pushes one queued record. Success marks it synced; a failed
// push bumps its attempt counter and marks it failed.
func (r *Repository) SyncAlert(ctx context.Context, rec models.AlertRecord) error {
	if !r.network.Reachable(ctx) {
		return ErrNoConnectivity
	}
	log := r.logger.With().Str("alert_id", rec.AlertID).Uint("record_id", rec.ID).Logger()

	err := r.push(ctx, rec)

	wctx, cancel := localWriteContext(ctx)
	defer cancel()

	if err != nil {
		if ferr := r.store.RecordFailedAttempt(wctx, rec.ID, r.now()); ferr != nil {
			log.Error().Err(ferr).Msg("Failed to record sync attempt")
		}
		metrics.AlertSyncs.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Int("attempts", rec.SyncAttempts+1).Msg("Alert sync failed")
		return &RemoteWriteError{AlertID: rec.AlertID, Err: err}
	}

	if err := r.store.MarkStatus(wctx, rec.ID, models.AlertStatusSynced, r.now()); err != nil {
		log.Error().Err(err).Msg("Alert pushed but local status update failed")
		return localErr("mark synced", err)
	}
	metrics.AlertSyncs.WithLabelValues("synced").Inc()
	log.Info().Msg("Alert synced")
	return nil
}

// CleanupOldAlerts deletes synced alerts, and failed alerts past the
// attempt cap, older than daysOld days.
func (r *Repository) CleanupOldAlerts(ctx context.Context, daysOld int) (int64, error) {
	if daysOld <= 0 {
		daysOld = 30
	}
	cutoff := r.now().AddDate(0, 0, -daysOld)

	synced, err := r.store.DeleteSyncedBefore(ctx, cutoff)
	if err != nil {
		return 0, localErr("cleanup synced", err)
	}
	failed, err := r.store.DeleteFailedBefore(ctx, cutoff, r.cfg.MaxSyncAttempts)
	if err != nil {
		return synced, localErr("cleanup failed", err)
	}
	r.logger.Info().Int64("synced", synced).Int64("failed", failed).Int("days_old", daysOld).Msg("Old alerts cleaned up")
	return synced + failed, nil
}

func (r *Repository) DeleteAlert(ctx context.Context, id uint) error {
	return localErr("delete", r.store.Delete(ctx, id))
}

// IsNotFound reports whether err is a lookup miss in the local store.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrAlertNotFound)
}

// localWriteContext detaches from ctx's cancellation so a record the remote
// side never saw, or just accepted, is still written down locally.
func localWriteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), localWriteTimeout)
}

func (r *Repository) push(ctx context.Context, rec models.AlertRecord) error {
	remote, err := models.RemoteAlertFromRecord(rec)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.PushTimeout)
	defer cancel()

	inserted, err := r.remote.Append(ctx, remote)
	if err != nil {
		return err
	}
	if !inserted {
		r.logger.Debug().Str("alert_id", rec.AlertID).Msg("Alert already present in remote store")
	}
	return nil
}
