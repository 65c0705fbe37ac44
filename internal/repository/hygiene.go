package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

func (r *repository) FindExpiredRateLimitBuckets(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(
		ctx,
		&ids,
		`SELECT id FROM rate_limit_buckets
		 WHERE window_start < $1
		 ORDER BY window_start ASC
		 LIMIT $2`,
		cutoff,
		limit,
	)
	return ids, err
}

func (r *repository) DeleteRateLimitBuckets(ctx context.Context, ids []string) error {
	return r.deleteByID(ctx, "rate_limit_buckets", ids)
}

func (r *repository) FindExpiredEmailLoginCodes(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(
		ctx,
		&ids,
		`SELECT id FROM email_login_codes
		 WHERE expires_at < $1
		 ORDER BY expires_at ASC
		 LIMIT $2`,
		cutoff,
		limit,
	)
	return ids, err
}

func (r *repository) DeleteEmailLoginCodes(ctx context.Context, ids []string) error {
	return r.deleteByID(ctx, "email_login_codes", ids)
}

func (r *repository) FindExpiredDeviceAuthRequests(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(
		ctx,
		&ids,
		`SELECT id FROM device_auth_requests
		 WHERE expires_at < $1
		 ORDER BY expires_at ASC
		 LIMIT $2`,
		cutoff,
		limit,
	)
	return ids, err
}

func (r *repository) DeleteDeviceAuthRequests(ctx context.Context, ids []string) error {
	return r.deleteByID(ctx, "device_auth_requests", ids)
}

func (r *repository) FindExpiredAPIRefreshTokens(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(
		ctx,
		&ids,
		`SELECT id FROM api_refresh_tokens
		 WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
		 ORDER BY revoked_at ASC NULLS LAST, expires_at ASC
		 LIMIT $2`,
		cutoff,
		limit,
	)
	return ids, err
}

func (r *repository) DeleteAPIRefreshTokens(ctx context.Context, ids []string) error {
	return r.deleteByID(ctx, "api_refresh_tokens", ids)
}

func (r *repository) deleteByID(ctx context.Context, table string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	// Table names come from the callers above, never from input.
	query, args, err := sqlx.In(fmt.Sprintf(`DELETE FROM %s WHERE id IN (?)`, table), ids)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	return err
}
