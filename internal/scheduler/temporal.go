package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	sdktemporal "go.temporal.io/sdk/temporal"
	sdkworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/temporal"
	"github.com/stanstork/safeme-sync/internal/temporal/activities"
	"github.com/stanstork/safeme-sync/internal/temporal/workflows"
	"github.com/stanstork/safeme-sync/internal/worker"
)

type TemporalConfig struct {
	Client           client.Client
	Runner           SyncRunner
	Cleaner          Cleaner
	Network          Connectivity
	PeriodicInterval time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	CleanupSchedule  string
	RetentionDays    int
	Logger           zerolog.Logger
}

// TemporalScheduler runs sync passes as Temporal workflows. Immediate work is
// a workflow with a fixed ID; periodic work and cleanup are Temporal schedules.
type TemporalScheduler struct {
	cfg    TemporalConfig
	logger zerolog.Logger
	worker sdkworker.Worker
}

func NewTemporalScheduler(cfg TemporalConfig) *TemporalScheduler {
	if cfg.PeriodicInterval <= 0 {
		cfg.PeriodicInterval = 15 * time.Minute
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	return &TemporalScheduler{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "scheduler").Str("backend", "temporal").Logger(),
	}
}

func (s *TemporalScheduler) Start(ctx context.Context) error {
	w := sdkworker.New(s.cfg.Client, temporal.TaskQueueName, sdkworker.Options{})
	w.RegisterWorkflowWithOptions(workflows.SyncWorkflow, workflow.RegisterOptions{Name: temporal.SyncWorkflowName})
	w.RegisterWorkflowWithOptions(workflows.CleanupWorkflow, workflow.RegisterOptions{Name: temporal.CleanupWorkflowName})
	w.RegisterActivity(&activities.Activities{Runner: s.cfg.Runner, Cleaner: s.cfg.Cleaner})

	if err := w.Start(); err != nil {
		return fmt.Errorf("start temporal worker: %w", err)
	}
	s.worker = w
	s.logger.Info().Str("task_queue", temporal.TaskQueueName).Msg("Temporal worker started")

	if s.cfg.Cleaner != nil && s.cfg.CleanupSchedule != "" {
		if err := s.createSchedule(ctx, client.ScheduleOptions{
			ID:   temporal.CleanupScheduleID,
			Spec: client.ScheduleSpec{CronExpressions: []string{s.cfg.CleanupSchedule}},
			Action: &client.ScheduleWorkflowAction{
				ID:        temporal.CleanupScheduleID,
				Workflow:  temporal.CleanupWorkflowName,
				Args:      []interface{}{temporal.CleanupParams{RetentionDays: s.cfg.RetentionDays}},
				TaskQueue: temporal.TaskQueueName,
			},
			Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *TemporalScheduler) Stop() {
	if s.worker != nil {
		s.logger.Info().Msg("Stopping Temporal worker...")
		s.worker.Stop()
	}
}

// ScheduleImmediate signals the immediate sync workflow, starting it when no
// execution is open. An execution waiting out a retry backoff runs its next
// pass right away; a pass already in progress finishes first.
func (s *TemporalScheduler) ScheduleImmediate(ctx context.Context) error {
	run, err := s.cfg.Client.SignalWithStartWorkflow(ctx, ImmediateJobName, temporal.SyncNowSignal, worker.TriggerImmediate,
		client.StartWorkflowOptions{
			ID:                    ImmediateJobName,
			TaskQueue:             temporal.TaskQueueName,
			WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		},
		temporal.SyncWorkflowName, s.syncParams(worker.TriggerImmediate))
	if err != nil {
		return fmt.Errorf("signal %s: %w", ImmediateJobName, err)
	}
	s.logger.Debug().Str("workflow_id", run.GetID()).Str("run_id", run.GetRunID()).Msg("Immediate sync requested")
	return nil
}

func (s *TemporalScheduler) SchedulePeriodic(ctx context.Context) error {
	return s.createSchedule(ctx, client.ScheduleOptions{
		ID:   PeriodicJobName,
		Spec: client.ScheduleSpec{Intervals: []client.ScheduleIntervalSpec{{Every: s.cfg.PeriodicInterval}}},
		Action: &client.ScheduleWorkflowAction{
			ID:        PeriodicJobName,
			Workflow:  temporal.SyncWorkflowName,
			Args:      []interface{}{s.syncParams(worker.TriggerPeriodic)},
			TaskQueue: temporal.TaskQueueName,
		},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
	})
}

func (s *TemporalScheduler) TriggerIfOnline(ctx context.Context) error {
	if !s.cfg.Network.Reachable(ctx) {
		s.logger.Debug().Msg("No network available for sync")
		return nil
	}
	return s.ScheduleImmediate(ctx)
}

// Cancel cancels the immediate workflow and deletes the periodic schedule.
func (s *TemporalScheduler) Cancel(ctx context.Context) error {
	if err := s.cfg.Client.CancelWorkflow(ctx, ImmediateJobName, ""); err != nil && !isNotFound(err) {
		return fmt.Errorf("cancel %s: %w", ImmediateJobName, err)
	}
	handle := s.cfg.Client.ScheduleClient().GetHandle(ctx, PeriodicJobName)
	if err := handle.Delete(ctx); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s: %w", PeriodicJobName, err)
	}
	s.logger.Info().Msg("All sync work cancelled")
	return nil
}

func (s *TemporalScheduler) createSchedule(ctx context.Context, opts client.ScheduleOptions) error {
	_, err := s.cfg.Client.ScheduleClient().Create(ctx, opts)
	switch {
	case errors.Is(err, sdktemporal.ErrScheduleAlreadyRunning):
		s.logger.Debug().Str("schedule", opts.ID).Msg("Schedule already registered, keeping it")
		return nil
	case err != nil:
		return fmt.Errorf("create schedule %s: %w", opts.ID, err)
	}
	s.logger.Info().Str("schedule", opts.ID).Msg("Schedule registered")
	return nil
}

func (s *TemporalScheduler) syncParams(trigger string) temporal.SyncParams {
	return temporal.SyncParams{
		Trigger:        trigger,
		InitialBackoff: s.cfg.InitialBackoff,
		MaxBackoff:     s.cfg.MaxBackoff,
	}
}

func isNotFound(err error) bool {
	var nf *serviceerror.NotFound
	return errors.As(err, &nf)
}
