// Package tasks holds the recurring jobs a worker instance runs under
// advisory-lock protection: database hygiene, daily pulse enqueueing,
// connector poll batch selection, and failed first-pulse retries.
package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/starbeam-hq/jobcoord/internal/config"
	"github.com/starbeam-hq/jobcoord/internal/enqueue"
	"github.com/starbeam-hq/jobcoord/internal/gc"
	"github.com/starbeam-hq/jobcoord/internal/lock"
	"github.com/starbeam-hq/jobcoord/internal/model"
	"github.com/starbeam-hq/jobcoord/internal/queue"
	"github.com/starbeam-hq/jobcoord/internal/repository"
	"github.com/starbeam-hq/jobcoord/internal/state"
)

// Advisory lock keys, one per scheduled task. 8011 is the application
// namespace; the second integer names the task.
var (
	HygieneLockKey       = lock.Key{A: 8011, B: 41027}
	ConnectorPollLockKey = lock.Key{A: 8011, B: 41029}
	DailyPulseLockKey    = lock.Key{A: 8011, B: 41031}
	RetryLockKey         = lock.Key{A: 8011, B: 41033}
)

// Store is the repository slice the tasks read and write.
type Store interface {
	state.Store
	gc.Store

	ListMembershipsAfter(ctx context.Context, createdAt time.Time, id string, limit int) ([]model.Membership, error)
	FindPulseEditionForDay(ctx context.Context, workspaceID, userID string, editionDate time.Time) (*model.PulseEdition, error)
	HasPulseEdition(ctx context.Context, workspaceID, userID string) (bool, error)
	UpsertJobRun(ctx context.Context, run model.JobRun) error
	ListFailedAutoFirstRuns(ctx context.Context, since time.Time, limit int) ([]model.JobRun, error)
	ListPollCandidates(ctx context.Context, connector repository.Connector, cutoff time.Time, limit int) ([]model.ConnectorPair, error)
}

// Tasks bundles the dependencies shared by all recurring jobs.
type Tasks struct {
	store    Store
	queue    queue.Queue
	enqueuer *enqueue.Enqueuer
	sweeper  *gc.Sweeper
	cfg      config.Config
	log      zerolog.Logger

	// now is swapped out by tests.
	now func() time.Time
}

func New(store Store, q queue.Queue, enq *enqueue.Enqueuer, cfg config.Config, log zerolog.Logger) *Tasks {
	sweeper := gc.New(store,
		gc.WithRetentionDays(cfg.GC.RetentionDays),
		gc.WithBatch(cfg.GC.Batch),
		gc.WithPacer(rate.NewLimiter(rate.Limit(cfg.GC.BatchesPerSec), 1)),
		gc.WithLogger(log),
	)
	return &Tasks{
		store:    store,
		queue:    q,
		enqueuer: enq,
		sweeper:  sweeper,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}
