package temporal

import "time"

// TaskQueueName is the Temporal task queue that sync workflows run on.
const TaskQueueName = "SAFEME_ALERT_SYNC"

// Registered workflow names. Clients start workflows by name so they do not
// import the workflow package.
const (
	SyncWorkflowName    = "AlertSyncWorkflow"
	CleanupWorkflowName = "AlertCleanupWorkflow"
)

// SyncNowSignal asks an open sync workflow to run its next pass now. The
// payload is the trigger name.
const SyncNowSignal = "sync-now"

// CleanupScheduleID identifies the Temporal schedule for local store cleanup.
const CleanupScheduleID = "alert_cleanup"

// DefaultActivityTimeout bounds a single sync pass.
const DefaultActivityTimeout = 5 * time.Minute

// Application error types returned by the sync activity.
const (
	ErrTypeSyncRetry   = "SyncRetry"
	ErrTypeSyncFailure = "SyncFailure"
)

// SyncParams is the input of the sync workflow.
type SyncParams struct {
	Trigger        string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// CleanupParams is the input of the cleanup workflow.
type CleanupParams struct {
	RetentionDays int
}
