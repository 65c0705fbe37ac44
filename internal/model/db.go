package model

import (
	"encoding/json"
	"time"
)

// JobRun statuses. A run is terminal once FinishedAt is set.
const (
	JobRunQueued    = "QUEUED"
	JobRunRunning   = "RUNNING"
	JobRunPartial   = "PARTIAL"
	JobRunFailed    = "FAILED"
	JobRunSucceeded = "SUCCEEDED"
)

// JobRun kinds.
const (
	KindNightlyWorkspaceRun = "NIGHTLY_WORKSPACE_RUN"
)

// Pulse edition statuses referenced by scheduling checks.
const (
	PulseReady      = "READY"
	PulseGenerating = "GENERATING"
)

// Membership roles allowed to trigger a manual run.
const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleMember  = "MEMBER"
)

type RateLimitBucket struct {
	ID          string    `db:"id"`
	Key         string    `db:"key"`
	WindowStart time.Time `db:"window_start"`
	WindowSec   int       `db:"window_sec"`
	Count       int       `db:"count"`
}

type JobRun struct {
	ID           string          `db:"id"`
	WorkspaceID  string          `db:"workspace_id"`
	Kind         string          `db:"kind"`
	Status       string          `db:"status"`
	Meta         json.RawMessage `db:"meta"`
	ErrorSummary *string         `db:"error_summary"`
	StartedAt    *time.Time      `db:"started_at"`
	FinishedAt   *time.Time      `db:"finished_at"`
	CreatedAt    time.Time       `db:"created_at"`
}

type SchedulerState struct {
	Key    string  `db:"key"`
	Cursor *string `db:"cursor"`
}

type Membership struct {
	WorkspaceID string    `db:"workspace_id"`
	UserID      string    `db:"user_id"`
	Role        string    `db:"role"`
	Timezone    *string   `db:"timezone"`
	CreatedAt   time.Time `db:"created_at"`
}

type PulseEdition struct {
	ID     string `db:"id"`
	Status string `db:"status"`
}

// ConnectorPair is one workspace/user owning a pollable connection, as
// returned by the per-connector candidate queries.
type ConnectorPair struct {
	WorkspaceID string `db:"workspace_id"`
	UserID      string `db:"owner_user_id"`
}

type QueueJob struct {
	ID          string          `db:"id"`
	Task        string          `db:"task"`
	Payload     json.RawMessage `db:"payload"`
	JobKey      *string         `db:"job_key"`
	RunAt       time.Time       `db:"run_at"`
	MaxAttempts int             `db:"max_attempts"`
	Attempts    int             `db:"attempts"`
	State       string          `db:"state"`
}
