package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrLockTimeout is returned when a row lock could not be taken within the
// configured lock timeout
var ErrLockTimeout = errors.New("row lock timeout")

// MapPostgresError translates driver errors into model sentinels
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		return models.ErrConflict
	case "23503", "23502", "23514", "22P02": // foreign key, not null, check, bad text representation
		return models.ErrBadRequest
	case "55P03": // lock_not_available
		return fmt.Errorf("%w: %s", ErrLockTimeout, pgErr.Message)
	}
	return err
}

// WithTransaction runs fn in a transaction that commits when fn returns nil
// and rolls back on error or panic. When the DB has a lock timeout it is
// applied with SET LOCAL so a stuck SELECT ... FOR UPDATE cannot hold a
// login request forever.
func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if err = tx.Commit(ctx); err != nil {
			err = fmt.Errorf("failed to commit transaction: %w", MapPostgresError(err))
		}
	}()

	if db.lockTimeout > 0 {
		ms := db.lockTimeout.Milliseconds()
		if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", ms)); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	return fn(tx)
}
