// Package enqueue decides how background work enters the queue: which
// idempotency key it gets, whether a duplicate trigger replaces or coexists
// with a pending job, and the audit trail written alongside.
package enqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/starbeam-hq/jobcoord/internal/model"
	"github.com/starbeam-hq/jobcoord/internal/queue"
	"github.com/starbeam-hq/jobcoord/internal/ratelimit"
)

var (
	ErrNotAMember       = errors.New("not a member of this workspace")
	ErrInsufficientRole = errors.New("managers/admins only")
)

// Store is the slice of the repository the enqueuer needs.
type Store interface {
	ratelimit.Store

	CreateJobRun(ctx context.Context, run model.JobRun) error
	UpsertJobRun(ctx context.Context, run model.JobRun) error
	MarkJobRunFailed(ctx context.Context, id string, errorSummary string, finishedAt time.Time) error
	FindMembership(ctx context.Context, workspaceID, userID string) (*model.Membership, error)
	HasPulseEdition(ctx context.Context, workspaceID, userID string) (bool, error)
}

type Enqueuer struct {
	store Store
	queue queue.Queue
	log   zerolog.Logger
}

func New(store Store, q queue.Queue, log zerolog.Logger) *Enqueuer {
	return &Enqueuer{store: store, queue: q, log: log}
}

// Args describes one enqueue trigger.
type Args struct {
	WorkspaceID       string
	UserID            string
	TriggeredByUserID string
	Source            string
	RunAt             time.Time
	RequestID         string

	// RetryAttempt is non-zero when a failed first run is being re-enqueued
	// by the retry sweep.
	RetryAttempt int
}

type retryMeta struct {
	Attempt int `json:"attempt"`
}

type runMeta struct {
	TriggeredByUserID string     `json:"triggeredByUserId,omitempty"`
	UserID            string     `json:"userId,omitempty"`
	Source            string     `json:"source,omitempty"`
	JobKey            string     `json:"jobKey,omitempty"`
	RequestID         string     `json:"requestId,omitempty"`
	Retry             *retryMeta `json:"retry,omitempty"`
}

func mustMeta(m runMeta) json.RawMessage {
	body, _ := json.Marshal(m)
	return body
}

// EnqueueWorkspaceBootstrap schedules the workspace bootstrap job. Replace
// key semantics make it idempotent: a second trigger moves run_at instead of
// queueing twice.
func (e *Enqueuer) EnqueueWorkspaceBootstrap(ctx context.Context, args Args) error {
	decision := ForWorkspaceBootstrap(args.WorkspaceID, args.UserID)

	err := e.queue.AddJob(ctx, TaskWorkspaceBootstrap,
		map[string]string{"workspaceId": args.WorkspaceID, "userId": args.UserID},
		queue.Options{JobKey: decision.JobKey, KeyMode: decision.Mode, RunAt: args.RunAt},
	)
	if err != nil {
		return err
	}

	e.log.Info().
		Str("workspace_id", args.WorkspaceID).
		Str("user_id", args.UserID).
		Str("job_key", decision.JobKey).
		Str("source", args.Source).
		Msg("workspace bootstrap enqueued")
	return nil
}

// EnqueueAutoFirstNightlyRun schedules the one first nightly run of a
// workspace. The JobRun row is upserted under a deterministic id strictly
// before the queue write, so the audit trail always exists before the job.
func (e *Enqueuer) EnqueueAutoFirstNightlyRun(ctx context.Context, args Args) error {
	decision := ForAutoFirstNightlyRun(args.WorkspaceID)
	jobRunID := AutoFirstJobRunID(args.WorkspaceID)

	meta := runMeta{
		TriggeredByUserID: args.TriggeredByUserID,
		UserID:            args.UserID,
		Source:            args.Source,
		JobKey:            decision.JobKey,
		RequestID:         args.RequestID,
	}
	if args.RetryAttempt > 0 {
		meta.Retry = &retryMeta{Attempt: args.RetryAttempt}
	}

	err := e.store.UpsertJobRun(ctx, model.JobRun{
		ID:          jobRunID,
		WorkspaceID: args.WorkspaceID,
		Kind:        model.KindNightlyWorkspaceRun,
		Status:      model.JobRunQueued,
		Meta:        mustMeta(meta),
	})
	if err != nil {
		return err
	}

	err = e.queue.AddJob(ctx, TaskNightlyWorkspaceRun,
		map[string]string{"workspaceId": args.WorkspaceID, "jobRunId": jobRunID},
		queue.Options{JobKey: decision.JobKey, KeyMode: decision.Mode, RunAt: args.RunAt},
	)
	if err != nil {
		return err
	}

	e.log.Info().
		Str("workspace_id", args.WorkspaceID).
		Str("job_run_id", jobRunID).
		Str("source", args.Source).
		Msg("auto-first nightly run enqueued")
	return nil
}

// RunNightlyNow handles an explicit "run nightly now" request. It returns
// the id of the JobRun recording the trigger.
//
// The JobRun is created before the queue add, so a queue failure leaves a
// FAILED audit row instead of an orphaned queue entry; the error is then
// returned rather than swallowed, because a silently lost manual trigger is
// worse than a visible failure.
func (e *Enqueuer) RunNightlyNow(ctx context.Context, workspaceID, userID string) (string, error) {
	membership, err := e.store.FindMembership(ctx, workspaceID, userID)
	if err != nil {
		return "", err
	}
	if membership == nil {
		return "", ErrNotAMember
	}
	if membership.Role != model.RoleAdmin && membership.Role != model.RoleManager {
		return "", ErrInsufficientRole
	}

	hasPulse, err := e.store.HasPulseEdition(ctx, workspaceID, userID)
	if err != nil {
		return "", err
	}
	if !hasPulse {
		// First pulse: fold into the idempotent auto-first path instead of
		// minting a duplicate JobRun.
		args := Args{
			WorkspaceID:       workspaceID,
			UserID:            userID,
			TriggeredByUserID: userID,
			Source:            "web",
			RunAt:             time.Now().UTC(),
		}
		return AutoFirstJobRunID(workspaceID), e.EnqueueAutoFirstNightlyRun(ctx, args)
	}

	jobRunID := uuid.NewString()
	decision := ForManualRun(jobRunID)

	err = e.store.CreateJobRun(ctx, model.JobRun{
		ID:          jobRunID,
		WorkspaceID: workspaceID,
		Kind:        model.KindNightlyWorkspaceRun,
		Status:      model.JobRunQueued,
		Meta: mustMeta(runMeta{
			TriggeredByUserID: userID,
			Source:            "web",
			JobKey:            decision.JobKey,
		}),
	})
	if err != nil {
		return "", err
	}

	err = e.queue.AddJob(ctx, TaskNightlyWorkspaceRun,
		map[string]string{"workspaceId": workspaceID, "jobRunId": jobRunID},
		// runAt now, so "run now" never looks like a nightly schedule.
		queue.Options{JobKey: decision.JobKey, KeyMode: decision.Mode, RunAt: time.Now().UTC()},
	)
	if err != nil {
		if markErr := e.store.MarkJobRunFailed(ctx, jobRunID, err.Error(), time.Now().UTC()); markErr != nil {
			e.log.Error().Err(markErr).Str("job_run_id", jobRunID).Msg("could not mark job run failed")
		}
		return jobRunID, err
	}

	e.log.Info().
		Str("workspace_id", workspaceID).
		Str("job_run_id", jobRunID).
		Msg("manual nightly run enqueued")
	return jobRunID, nil
}

// RunNowLimits caps abusive or accidental bursts of first-pulse triggers.
type RunNowLimits struct {
	UserPerMinute      int
	WorkspacePerMinute int
	WorkspacePerDay    int
}

// GenerateFirstPulseNow is the "generate my first pulse" trigger. All three
// rate limits are consumed in sequence; any one failure aborts, and units
// already consumed on the other keys are not refunded.
func (e *Enqueuer) GenerateFirstPulseNow(ctx context.Context, args Args, limits RunNowLimits) error {
	membership, err := e.store.FindMembership(ctx, args.WorkspaceID, args.UserID)
	if err != nil {
		return err
	}
	if membership == nil {
		return ErrNotAMember
	}

	hasPulse, err := e.store.HasPulseEdition(ctx, args.WorkspaceID, args.UserID)
	if err != nil {
		return err
	}
	if hasPulse {
		return nil
	}

	if err := ratelimit.Consume(ctx, e.store, ratelimit.Args{
		Key:       "run_now:user:" + args.UserID,
		WindowSec: 60,
		Limit:     limits.UserPerMinute,
	}); err != nil {
		return err
	}
	if err := ratelimit.Consume(ctx, e.store, ratelimit.Args{
		Key:       "run_now:workspace:" + args.WorkspaceID,
		WindowSec: 60,
		Limit:     limits.WorkspacePerMinute,
	}); err != nil {
		return err
	}
	if err := ratelimit.Consume(ctx, e.store, ratelimit.Args{
		Key:       "run_day:workspace:" + args.WorkspaceID,
		WindowSec: 24 * 60 * 60,
		Limit:     limits.WorkspacePerDay,
	}); err != nil {
		return err
	}

	if err := e.EnqueueWorkspaceBootstrap(ctx, args); err != nil {
		return err
	}
	return e.EnqueueAutoFirstNightlyRun(ctx, args)
}
