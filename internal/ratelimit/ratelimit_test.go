package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	counts map[string]int
	err    error
}

func newMemStore() *memStore {
	return &memStore{counts: make(map[string]int)}
}

func (s *memStore) IncrementRateLimitBucket(_ context.Context, key string, windowStart time.Time, _ int) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	bucket := key + "@" + windowStart.Format(time.RFC3339)
	s.counts[bucket]++
	return s.counts[bucket], nil
}

func TestConsumeAllowsUpToLimitThenRejects(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	args := Args{Key: "run_now:user:u1", WindowSec: 60, Limit: 3}

	for i := 0; i < 3; i++ {
		require.NoError(t, consumeAt(ctx, store, args, now))
	}

	err := consumeAt(ctx, store, args, now)
	var rle *Error
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "run_now:user:u1", rle.Key)
}

func TestConsumeResetsInNextWindow(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	args := Args{Key: "k", WindowSec: 60, Limit: 1}

	now := time.Date(2026, 3, 1, 12, 0, 59, 0, time.UTC)
	require.NoError(t, consumeAt(ctx, store, args, now))
	require.Error(t, consumeAt(ctx, store, args, now))

	// One second later the window boundary has passed.
	assert.NoError(t, consumeAt(ctx, store, args, now.Add(time.Second)))
}

func TestConsumeZeroLimitAlwaysRejects(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	now := time.Now().UTC()

	err := consumeAt(ctx, store, Args{Key: "k", WindowSec: 60, Limit: 0}, now)
	var rle *Error
	assert.ErrorAs(t, err, &rle)

	err = consumeAt(ctx, store, Args{Key: "k", WindowSec: 60, Limit: -1}, now)
	assert.ErrorAs(t, err, &rle)
}

func TestConsumeRejectionStillSpendsASlot(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	args := Args{Key: "k", WindowSec: 3600, Limit: 1}

	require.NoError(t, consumeAt(ctx, store, args, now))
	require.Error(t, consumeAt(ctx, store, args, now))

	// The rejected call above consumed a unit too: count is now 2.
	bucket := "k@" + WindowStart(now, 3600).Format(time.RFC3339)
	assert.Equal(t, 2, store.counts[bucket])
}

func TestConsumePropagatesStoreError(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("db down")
	err := Consume(context.Background(), store, Args{Key: "k", WindowSec: 60, Limit: 5})
	assert.ErrorContains(t, err, "db down")

	var rle *Error
	assert.False(t, errors.As(err, &rle))
}

func TestWindowStartDailyWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 18, 45, 12, 0, time.UTC)
	start := WindowStart(now, 24*60*60)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)
}
