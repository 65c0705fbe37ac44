package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/starbeam-hq/jobcoord/internal/enqueue"
)

type failedRunMeta struct {
	UserID string `json:"userId"`
	Retry  *struct {
		Attempt int `json:"attempt"`
	} `json:"retry"`
}

func parseFailedRunMeta(meta json.RawMessage) failedRunMeta {
	var parsed failedRunMeta
	// Meta is written by several producers; broken JSON just means no user
	// to retry for.
	_ = json.Unmarshal(meta, &parsed)
	return parsed
}

// RetryFailedFirstPulses re-enqueues recently failed first nightly runs.
// A failed first pulse is the worst activation experience, so within a short
// window it is worth a few quiet retries before giving up for good.
func (t *Tasks) RetryFailedFirstPulses(ctx context.Context) error {
	if !t.cfg.RetryEnabled() {
		return nil
	}

	now := t.now()
	since := now.Add(-time.Duration(t.cfg.FirstPulseRetry.WindowHours) * time.Hour)

	runs, err := t.store.ListFailedAutoFirstRuns(ctx, since, t.cfg.FirstPulseRetry.Batch)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	queued := 0
	for _, run := range runs {
		meta := parseFailedRunMeta(run.Meta)
		if meta.UserID == "" {
			continue
		}

		attempt := 0
		if meta.Retry != nil {
			attempt = meta.Retry.Attempt
		}
		if attempt >= t.cfg.FirstPulseRetry.MaxAttempts {
			continue
		}

		// A pulse appearing since the failure means a later attempt already
		// succeeded.
		hasPulse, err := t.store.HasPulseEdition(ctx, run.WorkspaceID, meta.UserID)
		if err != nil {
			return err
		}
		if hasPulse {
			continue
		}

		err = t.enqueuer.EnqueueAutoFirstNightlyRun(ctx, enqueue.Args{
			WorkspaceID:  run.WorkspaceID,
			UserID:       meta.UserID,
			Source:       "auto-retry",
			RunAt:        now,
			RetryAttempt: attempt + 1,
		})
		if err != nil {
			t.log.Error().Err(err).Str("job_run_id", run.ID).Msg("first pulse retry enqueue failed")
			continue
		}
		queued++
	}

	t.log.Info().
		Int("scanned", len(runs)).
		Int("queued", queued).
		Msg("failed first pulse retry cycle")
	return nil
}
