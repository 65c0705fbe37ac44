package repository

import (
	"context"
	"time"

	"github.com/starbeam-hq/jobcoord/internal/model"
)

func (r *repository) CreateJobRun(ctx context.Context, run model.JobRun) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO job_runs (id, workspace_id, kind, status, meta, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())`,
		run.ID,
		run.WorkspaceID,
		run.Kind,
		run.Status,
		[]byte(run.Meta),
	)
	return err
}

// UpsertJobRun resets a deterministic-id run back to QUEUED, clearing any
// terminal fields from a previous attempt. This keeps the invariant that
// finished_at is set iff the status is terminal.
func (r *repository) UpsertJobRun(ctx context.Context, run model.JobRun) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO job_runs (id, workspace_id, kind, status, meta, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (id) DO UPDATE SET
		   workspace_id = EXCLUDED.workspace_id,
		   kind = EXCLUDED.kind,
		   status = EXCLUDED.status,
		   meta = EXCLUDED.meta,
		   started_at = NULL,
		   finished_at = NULL,
		   error_summary = NULL`,
		run.ID,
		run.WorkspaceID,
		run.Kind,
		run.Status,
		[]byte(run.Meta),
	)
	return err
}

func (r *repository) MarkJobRunFailed(ctx context.Context, id string, errorSummary string, finishedAt time.Time) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE job_runs
		 SET status = $2, error_summary = $3, finished_at = $4
		 WHERE id = $1`,
		id,
		model.JobRunFailed,
		errorSummary,
		finishedAt,
	)
	return err
}

func (r *repository) ListFailedAutoFirstRuns(ctx context.Context, since time.Time, limit int) ([]model.JobRun, error) {
	var runs []model.JobRun
	err := r.db.SelectContext(
		ctx,
		&runs,
		`SELECT id, workspace_id, kind, status, meta, error_summary, started_at, finished_at, created_at
		 FROM job_runs
		 WHERE kind = $1
		   AND id LIKE 'auto-first:%'
		   AND status IN ($2, $3)
		   AND (finished_at >= $4 OR (finished_at IS NULL AND created_at >= $4))
		 ORDER BY finished_at DESC NULLS LAST, created_at DESC
		 LIMIT $5`,
		model.KindNightlyWorkspaceRun,
		model.JobRunFailed,
		model.JobRunPartial,
		since,
		limit,
	)
	return runs, err
}
