package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/worker"
)

// Unique work names shared by every backend.
const (
	ImmediateJobName = "alert_sync_work"
	PeriodicJobName  = "alert_sync_work_periodic"
)

// Scheduler decides when sync passes run.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop()
	// ScheduleImmediate queues a one-off pass, replacing any queued one.
	ScheduleImmediate(ctx context.Context) error
	// SchedulePeriodic registers the periodic pass; an existing registration is kept.
	SchedulePeriodic(ctx context.Context) error
	TriggerIfOnline(ctx context.Context) error
	Cancel(ctx context.Context) error
}

type SyncRunner interface {
	Run(ctx context.Context, trigger string) worker.Outcome
}

type Cleaner interface {
	CleanupOldAlerts(ctx context.Context, daysOld int) (int64, error)
}

type Connectivity interface {
	Reachable(ctx context.Context) bool
}

// Initialize registers the periodic pass and kicks off an immediate one when online.
func Initialize(ctx context.Context, s Scheduler, logger zerolog.Logger) {
	if err := s.SchedulePeriodic(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to register periodic sync")
	}
	if err := s.TriggerIfOnline(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to trigger initial sync")
	}
	logger.Info().Msg("Automatic alert sync initialized")
}
