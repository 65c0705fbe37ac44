// Package lock wraps Postgres advisory locks so that a scheduled task runs
// on exactly one worker instance at a time. Acquisition is non-blocking: a
// loser skips the current cycle instead of queueing behind the holder.
package lock

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Key is the two-integer advisory lock identity. A is shared by the
// application, B names the task.
type Key struct {
	A int32
	B int32
}

// Lock holds a dedicated database session. Advisory locks are scoped to the
// session, so the same connection must issue the acquire and the release; if
// the session drops, Postgres frees the lock.
type Lock struct {
	conn *sqlx.Conn
}

// Acquire pins a connection from db for lock operations. Callers must Close
// the returned Lock.
func Acquire(ctx context.Context, db *sqlx.DB) (*Lock, error) {
	conn, err := db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	return &Lock{conn: conn}, nil
}

// TryAcquire attempts to take key without blocking. It reports false when
// another session holds the lock.
func (l *Lock) TryAcquire(ctx context.Context, key Key) (bool, error) {
	var ok bool
	err := l.conn.GetContext(ctx, &ok,
		`SELECT pg_try_advisory_lock($1::int, $2::int)`, key.A, key.B)
	return ok, err
}

// Release frees key. Postgres also releases it implicitly when the session
// ends, which covers crashed holders.
func (l *Lock) Release(ctx context.Context, key Key) error {
	var ok bool
	err := l.conn.GetContext(ctx, &ok,
		`SELECT pg_advisory_unlock($1::int, $2::int)`, key.A, key.B)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("advisory lock was not held by this session")
	}
	return nil
}

func (l *Lock) Close() error {
	return l.conn.Close()
}

// WithTry runs fn while holding key, or skips it entirely when another
// worker holds the lock. It reports whether fn ran.
func WithTry(ctx context.Context, db *sqlx.DB, key Key, fn func(context.Context) error) (bool, error) {
	l, err := Acquire(ctx, db)
	if err != nil {
		return false, err
	}
	defer l.Close()

	ok, err := l.TryAcquire(ctx, key)
	if err != nil || !ok {
		return false, err
	}

	runErr := fn(ctx)
	releaseErr := l.Release(ctx, key)
	return true, errors.Join(runErr, releaseErr)
}
