package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Connection is the subset of sqlx used by the Postgres queue adapter.
type Connection interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

var _ Connection = (*sqlx.DB)(nil)

// PG adapts a Postgres jobs table to the Queue port. The replace guarantee
// rests on the partial unique index over job_key for pending rows; the
// ON CONFLICT arm rewrites run_at and payload in the same statement, so two
// racing adds can never leave two pending jobs with one key.
type PG struct {
	db Connection
}

func NewPG(db Connection) *PG {
	return &PG{db: db}
}

func (q *PG) AddJob(ctx context.Context, task string, payload any, opts Options) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	runAt := opts.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 25
	}

	if opts.JobKey == "" {
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO queue_jobs (id, task, payload, run_at, max_attempts, state)
			VALUES ($1, $2, $3, $4, $5, 'pending')`,
			uuid.NewString(), task, body, runAt, maxAttempts,
		)
		return err
	}

	switch opts.KeyMode {
	case KeyModeReplace, "":
		_, err = q.db.ExecContext(ctx, `
			INSERT INTO queue_jobs (id, task, payload, job_key, run_at, max_attempts, state)
			VALUES ($1, $2, $3, $4, $5, $6, 'pending')
			ON CONFLICT (job_key) WHERE state = 'pending'
			DO UPDATE SET run_at = EXCLUDED.run_at, payload = EXCLUDED.payload`,
			uuid.NewString(), task, body, opts.JobKey, runAt, maxAttempts,
		)
	case KeyModeDedupe:
		_, err = q.db.ExecContext(ctx, `
			INSERT INTO queue_jobs (id, task, payload, job_key, run_at, max_attempts, state)
			VALUES ($1, $2, $3, $4, $5, $6, 'pending')
			ON CONFLICT (job_key) WHERE state = 'pending'
			DO NOTHING`,
			uuid.NewString(), task, body, opts.JobKey, runAt, maxAttempts,
		)
	default:
		return ErrUnknownKeyMode
	}

	return err
}

func (q *PG) CancelByKey(ctx context.Context, jobKey string) error {
	_, err := q.db.ExecContext(ctx, `
		DELETE FROM queue_jobs WHERE job_key = $1 AND state = 'pending'`,
		jobKey,
	)
	return err
}

var _ Queue = (*PG)(nil)
