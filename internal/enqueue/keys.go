package enqueue

import (
	"github.com/starbeam-hq/jobcoord/internal/queue"
)

// Task names understood by the worker pool.
const (
	TaskNightlyWorkspaceRun = "nightly_workspace_run"
	TaskWorkspaceBootstrap  = "workspace_bootstrap"
	TaskConnectorPollOne    = "connector_poll_one"
	TaskDeleteBlobs         = "delete_blobs"
)

// Decision is the idempotency key and conflict mode chosen for one logical
// unit of work before it is handed to the queue.
type Decision struct {
	JobKey string
	Mode   queue.KeyMode
}

// ForWorkspaceBootstrap keys the one pending bootstrap for a workspace/user.
// Re-triggering (say, connecting a second integration) reschedules the same
// logical job instead of creating a duplicate.
func ForWorkspaceBootstrap(workspaceID, userID string) Decision {
	return Decision{
		JobKey: TaskWorkspaceBootstrap + ":" + workspaceID + ":" + userID,
		Mode:   queue.KeyModeReplace,
	}
}

// ForAutoFirstNightlyRun keys the one pending first nightly run of a
// workspace.
func ForAutoFirstNightlyRun(workspaceID string) Decision {
	return Decision{
		JobKey: TaskNightlyWorkspaceRun + ":auto-first:" + workspaceID,
		Mode:   queue.KeyModeReplace,
	}
}

// ForManualRun keys an explicit "run now" by its freshly created JobRun id,
// so every manual run is tracked independently and never collapses with
// another.
func ForManualRun(jobRunID string) Decision {
	return Decision{
		JobKey: TaskNightlyWorkspaceRun + ":" + jobRunID,
		Mode:   queue.KeyModeReplace,
	}
}

// ForDailyRun keys one scheduled daily pulse per workspace/user/day. Dedupe
// mode: a second enqueue for the same day is dropped rather than
// rescheduled.
func ForDailyRun(workspaceID, userID, dateKey string) Decision {
	return Decision{
		JobKey: TaskNightlyWorkspaceRun + ":daily:" + workspaceID + ":" + userID + ":" + dateKey,
		Mode:   queue.KeyModeDedupe,
	}
}

// ForConnectorPoll keys the one pending poll for a workspace/user pair.
func ForConnectorPoll(workspaceID, userID string) Decision {
	return Decision{
		JobKey: TaskConnectorPollOne + ":" + workspaceID + ":" + userID,
		Mode:   queue.KeyModeReplace,
	}
}

// AutoFirstJobRunID is the deterministic JobRun id shared by every enqueue
// of a workspace's first run.
func AutoFirstJobRunID(workspaceID string) string {
	return "auto-first:" + workspaceID
}

// DailyJobRunID is the deterministic JobRun id for one user's pulse on one
// local day.
func DailyJobRunID(workspaceID, userID, dateKey string) string {
	return "daily:" + workspaceID + ":" + userID + ":" + dateKey
}
