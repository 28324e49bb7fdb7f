package storage

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
)

// Multi-statement writes (an event moving seasons, a user's team set being
// replaced) can collide with concurrent registrations under row locks.
const (
	txAttempts  = 4
	txBaseDelay = 10 * time.Millisecond
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func isTransientConflict(err error) bool {
	code := pgCode(err)
	return code == codeSerializationFailure || code == codeDeadlockDetected
}

// retryTx runs fn in a transaction and commits it. A serialization failure
// or deadlock rolls back and reruns fn from scratch after a jittered,
// doubling pause; any other error is returned as is. op names the write in
// error messages.
func (db *DB) retryTx(ctx context.Context, op string, fn func(pgx.Tx) error) error {
	delay := txBaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = db.runTx(ctx, op, fn)
		if err == nil || !isTransientConflict(err) || attempt == txAttempts {
			return err
		}
		db.logger.Debug("storage: retrying transaction", "op", op, "attempt", attempt, "error", err)
		pause := delay + time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
		delay *= 2
	}
}

func (db *DB) runTx(ctx context.Context, op string, fn func(pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin %s tx: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit %s tx: %w", op, err)
	}
	return nil
}
