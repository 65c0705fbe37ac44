package tasks

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/starbeam-hq/jobcoord/internal/lock"
)

// Runner drives the recurring tasks on cron schedules. Every worker
// instance runs a Runner; the advisory lock around each task decides which
// instance actually executes a given cycle.
type Runner struct {
	tasks    *Tasks
	db       *sqlx.DB
	cron     *cron.Cron
	memberID string
	log      zerolog.Logger
}

func NewRunner(t *Tasks, db *sqlx.DB, log zerolog.Logger) *Runner {
	return &Runner{
		tasks:    t,
		db:       db,
		cron:     cron.New(),
		memberID: uuid.NewString(),
		log:      log,
	}
}

// Start registers the schedules and begins firing them. It returns once the
// cron loop is running; Stop drains in-flight cycles.
func (r *Runner) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		key  lock.Key
		run  func(context.Context) error
	}{
		{"db_hygiene_gc", r.tasks.cfg.Schedules.Hygiene, HygieneLockKey, r.tasks.RunDBHygiene},
		{"enqueue_due_daily_pulses", r.tasks.cfg.Schedules.DailyPulse, DailyPulseLockKey, r.tasks.EnqueueDueDailyPulses},
		{"connector_poll", r.tasks.cfg.Schedules.ConnectorPoll, ConnectorPollLockKey, r.tasks.EnqueueConnectorPolls},
		{"retry_failed_first_pulses", r.tasks.cfg.Schedules.FirstPulseRetry, RetryLockKey, r.tasks.RetryFailedFirstPulses},
	}

	for _, job := range jobs {
		if _, err := r.cron.AddFunc(job.spec, r.guarded(ctx, job.name, job.key, job.run)); err != nil {
			return err
		}
	}

	r.log.Info().Str("member_id", r.memberID).Msg("task runner started")
	r.cron.Start()
	return nil
}

// Stop halts scheduling and blocks until running cycles finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info().Str("member_id", r.memberID).Msg("task runner stopped")
}

// guarded wraps a task in an advisory lock try. Losing the lock means
// another worker owns this cycle; that is routine and logged at debug.
func (r *Runner) guarded(ctx context.Context, name string, key lock.Key, run func(context.Context) error) func() {
	return func() {
		log := r.log.With().Str("task", name).Logger()

		ran, err := lock.WithTry(ctx, r.db, key, run)
		switch {
		case err != nil:
			log.Error().Err(err).Msg("task cycle failed")
		case !ran:
			log.Debug().Msg("task cycle held elsewhere")
		default:
			log.Debug().Msg("task cycle complete")
		}
	}
}
