package tasks

import (
	"context"
	"time"

	"github.com/starbeam-hq/jobcoord/internal/enqueue"
	"github.com/starbeam-hq/jobcoord/internal/queue"
	"github.com/starbeam-hq/jobcoord/internal/repository"
	"github.com/starbeam-hq/jobcoord/internal/roundrobin"
)

// EnqueueConnectorPolls picks the workspace/user pairs whose integrations
// are due for a poll and enqueues one poll job per pair. Candidates come in
// one ordered list per connector and are merged round-robin, so a connector
// with many overdue connections cannot starve the rest of the batch.
func (t *Tasks) EnqueueConnectorPolls(ctx context.Context) error {
	now := t.now()
	cutoff := now.Add(-time.Duration(t.cfg.ConnectorPoll.IntervalMins) * time.Minute)
	batch := t.cfg.ConnectorPoll.Batch

	lists := make([][]roundrobin.Pair, 0, len(repository.Connectors()))
	for _, connector := range repository.Connectors() {
		candidates, err := t.store.ListPollCandidates(ctx, connector, cutoff, batch)
		if err != nil {
			return err
		}
		pairs := make([]roundrobin.Pair, len(candidates))
		for i, c := range candidates {
			pairs[i] = roundrobin.Pair{WorkspaceID: c.WorkspaceID, UserID: c.UserID}
		}
		lists = append(lists, pairs)
	}

	picked := roundrobin.SelectPairs(lists, batch)

	for _, p := range picked {
		decision := enqueue.ForConnectorPoll(p.WorkspaceID, p.UserID)
		err := t.queue.AddJob(ctx, enqueue.TaskConnectorPollOne,
			map[string]string{"workspaceId": p.WorkspaceID, "userId": p.UserID},
			queue.Options{JobKey: decision.JobKey, KeyMode: decision.Mode, RunAt: now},
		)
		if err != nil {
			return err
		}
	}

	if len(picked) > 0 {
		t.log.Info().Int("enqueued", len(picked)).Msg("connector poll batch selected")
	}
	return nil
}
