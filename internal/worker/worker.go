package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/alerts"
	"github.com/stanstork/safeme-sync/internal/metrics"
	"github.com/stanstork/safeme-sync/internal/models"
	"github.com/stanstork/safeme-sync/internal/notification"
)

// Outcome is the terminal result of one sync pass.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeRetry   Outcome = "retry"
	OutcomeFailure Outcome = "failure"
)

// Trigger names label what started a pass.
const (
	TriggerImmediate = "immediate"
	TriggerPeriodic  = "periodic"
	TriggerRetry     = "retry"
)

type AlertSyncer interface {
	GetSyncCandidates(ctx context.Context) ([]models.AlertRecord, error)
	SyncAlert(ctx context.Context, rec models.AlertRecord) error
	GetPendingAlertsCount(ctx context.Context) (int, error)
}

type SummaryNotifier interface {
	NotifySyncSummary(ctx context.Context, synced, failed int) error
}

type WorkerConfig struct {
	Alerts     AlertSyncer
	Network    alerts.Connectivity
	Dispatcher alerts.AlertDispatcher
	Notifier   SummaryNotifier
	// RunTimeout caps a whole pass; zero means no cap beyond the per-call deadlines.
	RunTimeout time.Duration
	Logger     zerolog.Logger
}

// Worker runs sync passes: push every queued alert to the remote store,
// then email the alert's contacts.
type Worker struct {
	cfg    WorkerConfig
	logger zerolog.Logger
}

func NewWorker(cfg WorkerConfig) *Worker {
	return &Worker{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "sync_worker").Logger(),
	}
}

// Run performs one pass and reduces all per-record results into an Outcome.
func (w *Worker) Run(ctx context.Context, trigger string) Outcome {
	start := time.Now()
	if w.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.RunTimeout)
		defer cancel()
	}
	log := w.logger.With().Str("trigger", trigger).Logger()

	outcome := w.run(ctx, log)

	metrics.SyncRuns.WithLabelValues(string(outcome), trigger).Inc()
	metrics.SyncDuration.Observe(time.Since(start).Seconds())
	w.refreshPendingGauge(context.WithoutCancel(ctx))
	log.Info().Str("outcome", string(outcome)).Dur("took", time.Since(start)).Msg("Sync pass finished")
	return outcome
}

func (w *Worker) run(ctx context.Context, log zerolog.Logger) Outcome {
	if !w.cfg.Network.Reachable(ctx) {
		log.Info().Msg("No connectivity, sync deferred")
		return OutcomeRetry
	}

	candidates, err := w.cfg.Alerts.GetSyncCandidates(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load alerts to sync")
		return OutcomeRetry
	}
	if len(candidates) == 0 {
		log.Debug().Msg("Nothing to sync")
		return OutcomeSuccess
	}
	log.Info().Int("candidates", len(candidates)).Msg("Sync pass started")

	var synced, failed int
	interrupted := false
	for _, rec := range candidates {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		if w.syncOne(ctx, rec) {
			synced++
		} else {
			failed++
		}
	}

	if err := w.cfg.Notifier.NotifySyncSummary(context.WithoutCancel(ctx), synced, failed); err != nil {
		log.Warn().Err(err).Msg("Failed to publish sync summary")
	}

	switch {
	case synced > 0:
		return OutcomeSuccess
	case failed > 0 || interrupted:
		return OutcomeRetry
	default:
		return OutcomeFailure
	}
}

// syncOne pushes one record and, once it is synced, dispatches its emails.
// A dispatch failure is logged only; the record stays synced.
func (w *Worker) syncOne(ctx context.Context, rec models.AlertRecord) bool {
	log := w.logger.With().Str("alert_id", rec.AlertID).Logger()

	if err := w.cfg.Alerts.SyncAlert(ctx, rec); err != nil {
		var remoteErr *alerts.RemoteWriteError
		switch {
		case errors.Is(err, alerts.ErrNoConnectivity):
			log.Info().Msg("Connectivity lost mid-pass")
		case errors.As(err, &remoteErr):
			log.Warn().Err(remoteErr.Err).Msg("Remote write failed")
		default:
			log.Error().Err(err).Msg("Alert sync failed")
		}
		return false
	}

	res, err := w.cfg.Dispatcher.Dispatch(ctx, rec)
	if err != nil {
		log.Warn().Err(err).Msg("Alert emails not dispatched")
		return true
	}
	if !res.Delivered {
		log.Warn().Int("failed", res.EmailsFailed).Msg("No alert email delivered")
	}
	return true
}

func (w *Worker) refreshPendingGauge(ctx context.Context) {
	n, err := w.cfg.Alerts.GetPendingAlertsCount(ctx)
	if err != nil {
		w.logger.Debug().Err(err).Msg("Pending count unavailable")
		return
	}
	metrics.PendingAlerts.Set(float64(n))
}

var _ SummaryNotifier = notification.Service(nil)
