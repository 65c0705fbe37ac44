// Package queue is the port to the durable background job queue. The core
// only needs two operations from it: an idempotent AddJob with replace-by-key
// semantics, and best-effort cancellation of a pending job by key.
package queue

import (
	"context"
	"fmt"
	"time"
)

var ErrUnknownKeyMode = fmt.Errorf("unknown job key mode")

// KeyMode controls how an AddJob call interacts with an existing pending job
// carrying the same key.
type KeyMode string

const (
	// KeyModeReplace upserts the pending job's run_at and payload. It never
	// cancels and recreates, so queue-internal attempt counters survive.
	KeyModeReplace KeyMode = "replace"

	// KeyModeDedupe leaves an existing pending job untouched; the new add is
	// silently dropped.
	KeyModeDedupe KeyMode = "dedupe"
)

// Options tune a single AddJob call. A zero RunAt means "now". A nil or
// empty JobKey coexists with every other job.
type Options struct {
	JobKey      string
	KeyMode     KeyMode
	RunAt       time.Time
	MaxAttempts int
}

type Queue interface {
	AddJob(ctx context.Context, task string, payload any, opts Options) error
	CancelByKey(ctx context.Context, jobKey string) error
}
