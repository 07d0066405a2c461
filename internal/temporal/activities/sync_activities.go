package activities

import (
	"context"

	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/stanstork/safeme-sync/internal/temporal"
	"github.com/stanstork/safeme-sync/internal/worker"
)

type SyncRunner interface {
	Run(ctx context.Context, trigger string) worker.Outcome
}

type Cleaner interface {
	CleanupOldAlerts(ctx context.Context, daysOld int) (int64, error)
}

type Activities struct {
	Runner  SyncRunner
	Cleaner Cleaner
}

// SyncPassActivity runs one sync pass. A Retry outcome comes back as a
// SyncRetry error, a Failure outcome as a non-retryable SyncFailure error.
func (a *Activities) SyncPassActivity(ctx context.Context, trigger string) (string, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Running sync pass", "trigger", trigger, "attempt", activity.GetInfo(ctx).Attempt)

	outcome := a.Runner.Run(ctx, trigger)
	switch outcome {
	case worker.OutcomeRetry:
		return "", sdktemporal.NewApplicationError("sync pass needs retry", temporal.ErrTypeSyncRetry)
	case worker.OutcomeFailure:
		return "", sdktemporal.NewNonRetryableApplicationError("sync pass failed", temporal.ErrTypeSyncFailure, nil)
	}
	return string(outcome), nil
}

func (a *Activities) CleanupActivity(ctx context.Context, retentionDays int) (int64, error) {
	logger := activity.GetLogger(ctx)
	n, err := a.Cleaner.CleanupOldAlerts(ctx, retentionDays)
	if err != nil {
		logger.Error("Alert cleanup failed", "error", err)
		return 0, err
	}
	logger.Info("Alert cleanup finished", "deleted", n)
	return n, nil
}
