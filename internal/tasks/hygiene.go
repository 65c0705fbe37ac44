package tasks

import "context"

// RunDBHygiene sweeps expired rows out of the retention tables. The sweeper
// owns batching and pacing; this wrapper only exists so the task registers
// like the other recurring jobs.
func (t *Tasks) RunDBHygiene(ctx context.Context) error {
	return t.sweeper.Run(ctx)
}
