package enqueue

import (
	"context"

	"github.com/starbeam-hq/jobcoord/internal/queue"
)

// Blob names one stored object scheduled for deletion.
type Blob struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// EnqueueDeleteBlobs schedules a best-effort deletion of stored blobs after
// an integration disconnect. No job key: batches coexist, and the worker
// retries each batch a few times on its own.
func EnqueueDeleteBlobs(ctx context.Context, q queue.Queue, blobs []Blob) error {
	if len(blobs) == 0 {
		return nil
	}
	return q.AddJob(ctx, TaskDeleteBlobs,
		map[string][]Blob{"blobs": blobs},
		queue.Options{MaxAttempts: 5},
	)
}
