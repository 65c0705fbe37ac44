// Package gc sweeps expiring rows out of the hygiene tables in bounded
// batches, so retention cleanup never takes range locks across a large
// table.
package gc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultRetentionDays = 30
	DefaultBatch         = 1000
	MinBatch             = 100
	MaxBatch             = 5000
)

// Store covers the four hygiene tables. Every Find returns row ids ordered
// by expiry ascending, capped at limit.
type Store interface {
	FindExpiredRateLimitBuckets(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteRateLimitBuckets(ctx context.Context, ids []string) error
	FindExpiredEmailLoginCodes(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteEmailLoginCodes(ctx context.Context, ids []string) error
	FindExpiredDeviceAuthRequests(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteDeviceAuthRequests(ctx context.Context, ids []string) error
	FindExpiredAPIRefreshTokens(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteAPIRefreshTokens(ctx context.Context, ids []string) error
}

type Sweeper struct {
	store         Store
	retentionDays int
	batch         int
	pacer         *rate.Limiter
	log           zerolog.Logger
}

type Option func(*Sweeper)

// WithRetentionDays sets how long rows are kept past their expiry. Clamped
// to at least one day.
func WithRetentionDays(days int) Option {
	return func(s *Sweeper) {
		s.retentionDays = max(1, days)
	}
}

// WithBatch sets the per-round delete size, clamped to [MinBatch, MaxBatch].
func WithBatch(batch int) Option {
	return func(s *Sweeper) {
		s.batch = min(MaxBatch, max(MinBatch, batch))
	}
}

// WithPacer throttles delete rounds so a large backlog does not monopolize
// the database.
func WithPacer(p *rate.Limiter) Option {
	return func(s *Sweeper) {
		s.pacer = p
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Sweeper) {
		s.log = log
	}
}

func New(store Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:         store,
		retentionDays: DefaultRetentionDays,
		batch:         DefaultBatch,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps all four tables. Sweeps are independent: a failure in one table
// is recorded and the others still run, since GC is idempotent maintenance
// and the next cycle picks up whatever was left behind.
func (s *Sweeper) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)

	tables := []struct {
		name string
		find func(context.Context, time.Time, int) ([]string, error)
		del  func(context.Context, []string) error
	}{
		{"rate_limit_buckets", s.store.FindExpiredRateLimitBuckets, s.store.DeleteRateLimitBuckets},
		{"email_login_codes", s.store.FindExpiredEmailLoginCodes, s.store.DeleteEmailLoginCodes},
		{"device_auth_requests", s.store.FindExpiredDeviceAuthRequests, s.store.DeleteDeviceAuthRequests},
		{"api_refresh_tokens", s.store.FindExpiredAPIRefreshTokens, s.store.DeleteAPIRefreshTokens},
	}

	var errs []error
	for _, table := range tables {
		deleted, err := s.sweep(ctx, cutoff, table.find, table.del)
		if err != nil {
			s.log.Error().Err(err).Str("table", table.name).Msg("hygiene sweep failed")
			errs = append(errs, fmt.Errorf("%s: %w", table.name, err))
			continue
		}
		if deleted > 0 {
			s.log.Info().Str("table", table.name).Int("deleted", deleted).Msg("hygiene sweep")
		}
	}
	return errors.Join(errs...)
}

// sweep deletes expired rows in rounds of at most s.batch. A short fetch
// terminates the loop: rows newly matching the predicate arrived after the
// cutoff was computed and can never be older than it during this run.
func (s *Sweeper) sweep(
	ctx context.Context,
	cutoff time.Time,
	find func(context.Context, time.Time, int) ([]string, error),
	del func(context.Context, []string) error,
) (int, error) {
	deleted := 0
	for {
		if s.pacer != nil {
			if err := s.pacer.Wait(ctx); err != nil {
				return deleted, err
			}
		}

		ids, err := find(ctx, cutoff, s.batch)
		if err != nil {
			return deleted, err
		}
		if len(ids) == 0 {
			return deleted, nil
		}

		if err := del(ctx, ids); err != nil {
			return deleted, err
		}
		deleted += len(ids)

		if len(ids) < s.batch {
			return deleted, nil
		}
	}
}
