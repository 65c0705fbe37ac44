package tasks

import (
	"context"
	"encoding/json"

	"github.com/starbeam-hq/jobcoord/internal/enqueue"
	"github.com/starbeam-hq/jobcoord/internal/model"
	"github.com/starbeam-hq/jobcoord/internal/queue"
	"github.com/starbeam-hq/jobcoord/internal/state"
)

type dailyMeta struct {
	Source      string `json:"source"`
	UserID      string `json:"userId"`
	Timezone    string `json:"timezone"`
	EditionDate string `json:"editionDate"`
	JobKey      string `json:"jobKey"`
}

// EnqueueDueDailyPulses walks a batch of memberships and enqueues a pulse
// generation job for each user whose local clock is inside the enqueue
// window and who has no pulse for today yet. The walk position persists in
// scheduler state, so successive cycles cover the whole membership table
// even when it is far larger than one batch.
func (t *Tasks) EnqueueDueDailyPulses(ctx context.Context) error {
	controls, err := state.LoadDailyPulseControls(ctx, t.store)
	if err != nil {
		return err
	}
	if !controls.Enabled {
		return nil
	}

	cursor, err := state.LoadDailyPulseCursor(ctx, t.store)
	if err != nil {
		return err
	}

	after := state.Cursor{}
	if cursor != nil {
		after = *cursor
	}

	members, err := t.store.ListMembershipsAfter(ctx, after.CreatedAt, after.ID, t.cfg.DailyPulse.Batch)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		// End of the table: restart from the top next cycle.
		return state.SaveDailyPulseCursor(ctx, t.store, nil)
	}

	now := t.now()
	enqueued := 0

	for _, m := range members {
		tz := ""
		if m.Timezone != nil {
			tz = *m.Timezone
		}

		hour := hourInTimeZone(now, tz)
		if !eligibleNow(hour, controls.StartHour, controls.EndHour, controls.StrictWindow) {
			continue
		}

		editionDate := editionDateInTimeZone(now, tz)
		existing, err := t.store.FindPulseEditionForDay(ctx, m.WorkspaceID, m.UserID, editionDate)
		if err != nil {
			return err
		}
		if existing != nil && (existing.Status == model.PulseReady || existing.Status == model.PulseGenerating) {
			continue
		}

		key := dateKey(editionDate)
		decision := enqueue.ForDailyRun(m.WorkspaceID, m.UserID, key)
		jobRunID := enqueue.DailyJobRunID(m.WorkspaceID, m.UserID, key)

		meta, _ := json.Marshal(dailyMeta{
			Source:      "daily",
			UserID:      m.UserID,
			Timezone:    tz,
			EditionDate: key,
			JobKey:      decision.JobKey,
		})
		err = t.store.UpsertJobRun(ctx, model.JobRun{
			ID:          jobRunID,
			WorkspaceID: m.WorkspaceID,
			Kind:        model.KindNightlyWorkspaceRun,
			Status:      model.JobRunQueued,
			Meta:        meta,
		})
		if err != nil {
			return err
		}

		err = t.queue.AddJob(ctx, enqueue.TaskNightlyWorkspaceRun,
			map[string]string{"workspaceId": m.WorkspaceID, "userId": m.UserID, "jobRunId": jobRunID},
			queue.Options{JobKey: decision.JobKey, KeyMode: decision.Mode, RunAt: now},
		)
		if err != nil {
			return err
		}
		enqueued++
	}

	last := members[len(members)-1]
	err = state.SaveDailyPulseCursor(ctx, t.store, &state.Cursor{
		CreatedAt: last.CreatedAt,
		ID:        last.UserID,
	})
	if err != nil {
		return err
	}

	t.log.Info().
		Int("scanned", len(members)).
		Int("enqueued", enqueued).
		Msg("daily pulse enqueue cycle")
	return nil
}
