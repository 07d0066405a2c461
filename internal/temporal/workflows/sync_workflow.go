package workflows

import (
	"errors"
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/stanstork/safeme-sync/internal/temporal"
	"github.com/stanstork/safeme-sync/internal/temporal/activities"
	"github.com/stanstork/safeme-sync/internal/worker"
)

// SyncWorkflow runs sync passes until one ends in Success or Failure,
// backing off exponentially between Retry outcomes. A SyncNowSignal during a
// backoff cuts it short and resets the backoff; a pass in progress is never
// interrupted. Periodic runs are not retried; the next period picks the work up.
func SyncWorkflow(ctx workflow.Context, params temporal.SyncParams) (string, error) {
	initial, max := params.InitialBackoff, params.MaxBackoff
	if initial <= 0 {
		initial = 10 * time.Second
	}
	if max <= 0 {
		max = 5 * time.Hour
	}

	// Backoff lives in the workflow so a signal can cut it short.
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		RetryPolicy:         &sdktemporal.RetryPolicy{MaximumAttempts: 1},
	})
	logger := workflow.GetLogger(ctx)
	syncNow := workflow.GetSignalChannel(ctx, temporal.SyncNowSignal)

	// The signal that started this execution is the first pass itself.
	drainSignals(syncNow, new(string))

	trigger := params.Trigger
	attempt := 0
	for {
		logger.Info("Starting sync pass", "trigger", trigger, "attempt", attempt)

		var a *activities.Activities
		var outcome string
		err := workflow.ExecuteActivity(ctx, a.SyncPassActivity, trigger).Get(ctx, &outcome)
		switch {
		case err == nil:
			if drainSignals(syncNow, &trigger) {
				logger.Info("Sync requested during pass, running again")
				attempt = 0
				continue
			}
			logger.Info("Sync workflow completed", "outcome", outcome)
			return outcome, nil
		case isSyncFailure(err):
			logger.Error("Sync workflow failed", "error", err)
			return "", err
		case params.Trigger == worker.TriggerPeriodic:
			logger.Info("Periodic sync deferred to next period")
			return string(worker.OutcomeRetry), nil
		}

		delay := worker.RetryDelay(initial, max, attempt)
		attempt++
		logger.Info("Sync pass needs retry", "delay", delay, "attempt", attempt, "error", err)

		timerCtx, cancelTimer := workflow.WithCancel(ctx)
		sel := workflow.NewSelector(ctx)
		sel.AddFuture(workflow.NewTimer(timerCtx, delay), func(workflow.Future) {
			trigger = worker.TriggerRetry
		})
		sel.AddReceive(syncNow, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, &trigger)
			drainSignals(c, &trigger)
			attempt = 0
			logger.Info("Sync requested, backoff cut short", "trigger", trigger)
		})
		sel.Select(ctx)
		cancelTimer()
	}
}

// drainSignals consumes every buffered signal, keeping the last payload in
// trigger. It reports whether any signal was pending.
func drainSignals(c workflow.ReceiveChannel, trigger *string) bool {
	got := false
	for c.ReceiveAsync(trigger) {
		got = true
	}
	return got
}

func isSyncFailure(err error) bool {
	var appErr *sdktemporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == temporal.ErrTypeSyncFailure
}

// CleanupWorkflow deletes old synced and exhausted alerts from the local store.
func CleanupWorkflow(ctx workflow.Context, params temporal.CleanupParams) (int64, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         &sdktemporal.RetryPolicy{MaximumAttempts: 3},
	})

	var a *activities.Activities
	var deleted int64
	if err := workflow.ExecuteActivity(ctx, a.CleanupActivity, params.RetentionDays).Get(ctx, &deleted); err != nil {
		return 0, err
	}
	return deleted, nil
}
