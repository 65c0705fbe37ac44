package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/starbeam-hq/jobcoord/internal/model"
)

// Repository is the single database surface of the coordination core. Every
// mutation that needs atomicity is expressed as one guarded SQL statement;
// nothing here assumes a single writer.
type Repository interface {
	// Rate limiting.
	IncrementRateLimitBucket(ctx context.Context, key string, windowStart time.Time, windowSec int) (int, error)

	// JobRun audit trail.
	CreateJobRun(ctx context.Context, run model.JobRun) error
	UpsertJobRun(ctx context.Context, run model.JobRun) error
	MarkJobRunFailed(ctx context.Context, id string, errorSummary string, finishedAt time.Time) error
	ListFailedAutoFirstRuns(ctx context.Context, since time.Time, limit int) ([]model.JobRun, error)

	// Membership and pulse lookups.
	FindMembership(ctx context.Context, workspaceID, userID string) (*model.Membership, error)
	ListMembershipsAfter(ctx context.Context, createdAt time.Time, id string, limit int) ([]model.Membership, error)
	HasPulseEdition(ctx context.Context, workspaceID, userID string) (bool, error)
	FindPulseEditionForDay(ctx context.Context, workspaceID, userID string, editionDate time.Time) (*model.PulseEdition, error)

	// Connector poll candidates.
	ListPollCandidates(ctx context.Context, connector Connector, cutoff time.Time, limit int) ([]model.ConnectorPair, error)

	// Scheduler state.
	LoadSchedulerState(ctx context.Context, key string) (*string, error)
	SaveSchedulerState(ctx context.Context, key string, cursor string) error

	// DB hygiene.
	FindExpiredRateLimitBuckets(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteRateLimitBuckets(ctx context.Context, ids []string) error
	FindExpiredEmailLoginCodes(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteEmailLoginCodes(ctx context.Context, ids []string) error
	FindExpiredDeviceAuthRequests(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteDeviceAuthRequests(ctx context.Context, ids []string) error
	FindExpiredAPIRefreshTokens(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteAPIRefreshTokens(ctx context.Context, ids []string) error
}

// Connection abstracts *sqlx.DB and *sqlx.Tx.
type Connection interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type repository struct {
	db Connection
}

// New connects to Postgres and returns the repository together with a close
// function for the underlying pool.
func New(ctx context.Context, conn string) (Repository, func() error, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", conn)
	if err != nil {
		return nil, nil, err
	}
	return &repository{db}, db.Close, nil
}

// NewWithConnection wraps an existing connection or transaction.
func NewWithConnection(db Connection) Repository {
	return &repository{db}
}

func (r *repository) IncrementRateLimitBucket(ctx context.Context, key string, windowStart time.Time, windowSec int) (int, error) {
	var count int
	err := r.db.GetContext(
		ctx,
		&count,
		`INSERT INTO rate_limit_buckets (id, key, window_start, window_sec, count)
		 VALUES (gen_random_uuid(), $1, $2, $3, 1)
		 ON CONFLICT (key, window_start)
		 DO UPDATE SET count = rate_limit_buckets.count + 1, window_sec = EXCLUDED.window_sec
		 RETURNING count`,
		key,
		windowStart,
		windowSec,
	)
	return count, err
}

func (r *repository) LoadSchedulerState(ctx context.Context, key string) (*string, error) {
	var row model.SchedulerState
	err := r.db.GetContext(
		ctx,
		&row,
		`SELECT key, cursor FROM scheduler_state WHERE key = $1`,
		key,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.Cursor, nil
}

func (r *repository) SaveSchedulerState(ctx context.Context, key string, cursor string) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO scheduler_state (key, cursor)
		 VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET cursor = EXCLUDED.cursor`,
		key,
		cursor,
	)
	return err
}
