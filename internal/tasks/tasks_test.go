package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/starbeam-hq/jobcoord/internal/config"
	"github.com/starbeam-hq/jobcoord/internal/enqueue"
	"github.com/starbeam-hq/jobcoord/internal/model"
	"github.com/starbeam-hq/jobcoord/internal/queue"
	"github.com/starbeam-hq/jobcoord/internal/repository"
)

// fakeStore backs the task tests. It implements both the tasks Store and the
// enqueue Store, so the retry task can drive a real Enqueuer against it.
type fakeStore struct {
	state      map[string]string
	members    []model.Membership
	editions   map[string]*model.PulseEdition
	pulses     map[string]bool
	jobRuns    map[string]model.JobRun
	failedRuns []model.JobRun
	candidates map[repository.Connector][]model.ConnectorPair

	pollCutoffs []time.Time
	expired     map[string][]string
	deleted     map[string][][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		state:      make(map[string]string),
		editions:   make(map[string]*model.PulseEdition),
		pulses:     make(map[string]bool),
		jobRuns:    make(map[string]model.JobRun),
		candidates: make(map[repository.Connector][]model.ConnectorPair),
		expired:    make(map[string][]string),
		deleted:    make(map[string][][]string),
	}
}

func (f *fakeStore) LoadSchedulerState(_ context.Context, key string) (*string, error) {
	v, ok := f.state[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (f *fakeStore) SaveSchedulerState(_ context.Context, key, cursor string) error {
	f.state[key] = cursor
	return nil
}

func (f *fakeStore) ListMembershipsAfter(_ context.Context, createdAt time.Time, id string, limit int) ([]model.Membership, error) {
	var out []model.Membership
	for _, m := range f.members {
		after := m.CreatedAt.After(createdAt) ||
			(m.CreatedAt.Equal(createdAt) && m.UserID > id)
		if !after {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) FindPulseEditionForDay(_ context.Context, workspaceID, userID string, editionDate time.Time) (*model.PulseEdition, error) {
	return f.editions[workspaceID+"|"+userID+"|"+dateKey(editionDate)], nil
}

func (f *fakeStore) HasPulseEdition(_ context.Context, workspaceID, userID string) (bool, error) {
	return f.pulses[workspaceID+"|"+userID], nil
}

func (f *fakeStore) UpsertJobRun(_ context.Context, run model.JobRun) error {
	f.jobRuns[run.ID] = run
	return nil
}

func (f *fakeStore) ListFailedAutoFirstRuns(_ context.Context, _ time.Time, limit int) ([]model.JobRun, error) {
	if len(f.failedRuns) > limit {
		return f.failedRuns[:limit], nil
	}
	return f.failedRuns, nil
}

func (f *fakeStore) ListPollCandidates(_ context.Context, connector repository.Connector, cutoff time.Time, limit int) ([]model.ConnectorPair, error) {
	f.pollCutoffs = append(f.pollCutoffs, cutoff)
	pairs := f.candidates[connector]
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs, nil
}

func (f *fakeStore) IncrementRateLimitBucket(context.Context, string, time.Time, int) (int, error) {
	return 1, nil
}

func (f *fakeStore) CreateJobRun(_ context.Context, run model.JobRun) error {
	f.jobRuns[run.ID] = run
	return nil
}

func (f *fakeStore) MarkJobRunFailed(_ context.Context, id, errorSummary string, finishedAt time.Time) error {
	run := f.jobRuns[id]
	run.Status = model.JobRunFailed
	run.ErrorSummary = &errorSummary
	run.FinishedAt = &finishedAt
	f.jobRuns[id] = run
	return nil
}

func (f *fakeStore) FindMembership(_ context.Context, workspaceID, userID string) (*model.Membership, error) {
	for _, m := range f.members {
		if m.WorkspaceID == workspaceID && m.UserID == userID {
			return &m, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindExpiredRateLimitBuckets(_ context.Context, _ time.Time, _ int) ([]string, error) {
	return f.takeExpired("rate_limit_buckets"), nil
}

func (f *fakeStore) DeleteRateLimitBuckets(_ context.Context, ids []string) error {
	f.deleted["rate_limit_buckets"] = append(f.deleted["rate_limit_buckets"], ids)
	return nil
}

func (f *fakeStore) FindExpiredEmailLoginCodes(_ context.Context, _ time.Time, _ int) ([]string, error) {
	return f.takeExpired("email_login_codes"), nil
}

func (f *fakeStore) DeleteEmailLoginCodes(_ context.Context, ids []string) error {
	f.deleted["email_login_codes"] = append(f.deleted["email_login_codes"], ids)
	return nil
}

func (f *fakeStore) FindExpiredDeviceAuthRequests(_ context.Context, _ time.Time, _ int) ([]string, error) {
	return f.takeExpired("device_auth_requests"), nil
}

func (f *fakeStore) DeleteDeviceAuthRequests(_ context.Context, ids []string) error {
	f.deleted["device_auth_requests"] = append(f.deleted["device_auth_requests"], ids)
	return nil
}

func (f *fakeStore) FindExpiredAPIRefreshTokens(_ context.Context, _ time.Time, _ int) ([]string, error) {
	return f.takeExpired("api_refresh_tokens"), nil
}

func (f *fakeStore) DeleteAPIRefreshTokens(_ context.Context, ids []string) error {
	f.deleted["api_refresh_tokens"] = append(f.deleted["api_refresh_tokens"], ids)
	return nil
}

func (f *fakeStore) takeExpired(table string) []string {
	ids := f.expired[table]
	f.expired[table] = nil
	return ids
}

func testConfig() config.Config {
	return config.Config{
		Env: "development",
		GC: config.GC{
			RetentionDays: 30,
			Batch:         100,
			BatchesPerSec: 1000,
		},
		DailyPulse: config.DailyPulse{Batch: 200},
		ConnectorPoll: config.ConnectorPoll{
			IntervalMins: 15,
			Batch:        20,
		},
		FirstPulseRetry: config.FirstPulseRetry{
			WindowHours: 24,
			MaxAttempts: 3,
			Batch:       120,
		},
	}
}

func newTestTasks(store *fakeStore, q queue.Queue, cfg config.Config, now time.Time) *Tasks {
	enq := enqueue.New(store, q, zerolog.Nop())
	t := New(store, q, enq, cfg, zerolog.Nop())
	t.now = func() time.Time { return now }
	return t
}

func strPtr(s string) *string { return &s }
