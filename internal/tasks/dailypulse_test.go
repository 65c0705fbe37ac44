package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starbeam-hq/jobcoord/internal/enqueue"
	"github.com/starbeam-hq/jobcoord/internal/model"
	"github.com/starbeam-hq/jobcoord/internal/queue"
	"github.com/starbeam-hq/jobcoord/internal/state"
)

func TestEnqueueDueDailyPulsesDisabled(t *testing.T) {
	store := newFakeStore()
	store.state[state.DailyPulseControlsKey] = `{"enabled": false}`
	store.members = []model.Membership{
		{WorkspaceID: "ws1", UserID: "u1", CreatedAt: time.Unix(100, 0)},
	}

	q := queue.NewMemory()
	tk := newTestTasks(store, q, testConfig(), time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	require.NoError(t, tk.EnqueueDueDailyPulses(context.Background()))
	assert.Empty(t, q.Jobs())
	assert.Empty(t, store.jobRuns)
}

func TestEnqueueDueDailyPulsesWindowAndSkips(t *testing.T) {
	// 01:00 UTC: the default window opens at local hour 2, so a UTC member
	// is not yet due while a Tokyo member (10:00 local) is.
	now := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)

	store := newFakeStore()
	store.members = []model.Membership{
		{WorkspaceID: "ws1", UserID: "early", CreatedAt: time.Unix(100, 0)},
		{WorkspaceID: "ws1", UserID: "tokyo", Timezone: strPtr("Asia/Tokyo"), CreatedAt: time.Unix(200, 0)},
		{WorkspaceID: "ws1", UserID: "served", Timezone: strPtr("Asia/Tokyo"), CreatedAt: time.Unix(300, 0)},
	}
	// "served" already has a READY pulse for their local day.
	store.editions["ws1|served|2026-03-10"] = &model.PulseEdition{ID: "pe1", Status: model.PulseReady}

	q := queue.NewMemory()
	tk := newTestTasks(store, q, testConfig(), now)

	require.NoError(t, tk.EnqueueDueDailyPulses(context.Background()))

	jobs := q.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, enqueue.TaskNightlyWorkspaceRun, jobs[0].Task)
	assert.Equal(t, "nightly_workspace_run:daily:ws1:tokyo:2026-03-10", jobs[0].JobKey)

	run, ok := store.jobRuns["daily:ws1:tokyo:2026-03-10"]
	require.True(t, ok)
	assert.Equal(t, model.JobRunQueued, run.Status)
	assert.Equal(t, model.KindNightlyWorkspaceRun, run.Kind)
	assert.Contains(t, string(run.Meta), `"source":"daily"`)
	assert.Contains(t, string(run.Meta), `"timezone":"Asia/Tokyo"`)

	// The cursor advances to the last scanned member, not the last enqueued.
	cursor := state.DecodeCursor(strPtr(store.state[state.DailyPulseCursorKey]))
	require.NotNil(t, cursor)
	assert.Equal(t, "served", cursor.ID)
	assert.True(t, cursor.CreatedAt.Equal(time.Unix(300, 0)))
}

func TestEnqueueDueDailyPulsesSameDayIsDeduped(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	store := newFakeStore()
	store.members = []model.Membership{
		{WorkspaceID: "ws1", UserID: "u1", CreatedAt: time.Unix(100, 0)},
	}

	q := queue.NewMemory()
	tk := newTestTasks(store, q, testConfig(), now)

	require.NoError(t, tk.EnqueueDueDailyPulses(context.Background()))

	// A second cycle on the same day rescans from the top after the cursor
	// wraps; the dedupe key keeps the queue at one job.
	require.NoError(t, tk.EnqueueDueDailyPulses(context.Background()))
	require.NoError(t, tk.EnqueueDueDailyPulses(context.Background()))

	assert.Len(t, q.Jobs(), 1)
}

func TestEnqueueDueDailyPulsesCursorWrap(t *testing.T) {
	store := newFakeStore()
	store.state[state.DailyPulseCursorKey] = state.EncodeCursor(state.Cursor{
		CreatedAt: time.Unix(500, 0),
		ID:        "zz",
	})
	store.members = []model.Membership{
		{WorkspaceID: "ws1", UserID: "u1", CreatedAt: time.Unix(100, 0)},
	}

	q := queue.NewMemory()
	tk := newTestTasks(store, q, testConfig(), time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	// Everything sorts before the stored cursor, so this cycle sees an empty
	// page and resets the cursor for the next one.
	require.NoError(t, tk.EnqueueDueDailyPulses(context.Background()))
	assert.Empty(t, q.Jobs())
	assert.Nil(t, state.DecodeCursor(strPtr(store.state[state.DailyPulseCursorKey])))

	require.NoError(t, tk.EnqueueDueDailyPulses(context.Background()))
	assert.Len(t, q.Jobs(), 1)
}

func TestEnqueueDueDailyPulsesBatchLimit(t *testing.T) {
	cfg := testConfig()
	cfg.DailyPulse.Batch = 2

	store := newFakeStore()
	for i, id := range []string{"a", "b", "c"} {
		store.members = append(store.members, model.Membership{
			WorkspaceID: "ws1",
			UserID:      id,
			CreatedAt:   time.Unix(int64(100+i), 0),
		})
	}

	q := queue.NewMemory()
	tk := newTestTasks(store, q, cfg, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	require.NoError(t, tk.EnqueueDueDailyPulses(context.Background()))
	assert.Len(t, q.Jobs(), 2)

	require.NoError(t, tk.EnqueueDueDailyPulses(context.Background()))
	assert.Len(t, q.Jobs(), 3)
}
