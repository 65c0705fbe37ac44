// Package ratelimit is a fixed-window rate limiter backed by durable
// storage, so limits hold across every web and worker instance sharing the
// database.
package ratelimit

import (
	"context"
	"time"
)

// Error reports an exhausted window. It maps to HTTP 429 at the boundary.
type Error struct {
	Key string
}

func (e *Error) Error() string {
	return "too many requests: " + e.Key
}

// Store atomically records one consumed unit for (key, windowStart) and
// returns the bucket count after the increment. The increment must be a
// single atomic statement; a read-then-write sequence would undercount under
// concurrent callers.
type Store interface {
	IncrementRateLimitBucket(ctx context.Context, key string, windowStart time.Time, windowSec int) (int, error)
}

type Args struct {
	Key       string
	WindowSec int
	Limit     int
}

// Consume spends one unit of quota for args.Key in the current fixed window.
// The unit is consumed first and the limit checked after, so a rejected call
// still burns a slot. Callers stacking several limits call Consume once per
// limit; units consumed before a failing check are not refunded.
func Consume(ctx context.Context, store Store, args Args) error {
	return consumeAt(ctx, store, args, time.Now().UTC())
}

func consumeAt(ctx context.Context, store Store, args Args, now time.Time) error {
	count, err := store.IncrementRateLimitBucket(ctx, args.Key, WindowStart(now, args.WindowSec), args.WindowSec)
	if err != nil {
		return err
	}
	if count > args.Limit {
		return &Error{Key: args.Key}
	}
	return nil
}

// WindowStart truncates now to the enclosing fixed-window boundary.
func WindowStart(now time.Time, windowSec int) time.Time {
	window := time.Duration(windowSec) * time.Second
	return now.UTC().Truncate(window)
}
