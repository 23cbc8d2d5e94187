package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const lockoutColumns = `id, failed_login_attempts, locked_until, lock_permanent, lock_count, last_login_attempt, last_login_ip`

// LockoutRepository persists lockout counters on the users row
type LockoutRepository struct {
	db *database.DB
}

func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLockoutRow(row rowScanner) (*models.LockoutState, error) {
	var (
		st          models.LockoutState
		lockedUntil *time.Time
		permanent   bool
		lastIP      *string
	)
	err := row.Scan(&st.AccountID, &st.FailedAttempts, &lockedUntil, &permanent,
		&st.LockCount, &st.LastAttemptAt, &lastIP)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	st.Lock = models.LockFromColumns(lockedUntil, permanent)
	if lastIP != nil {
		st.LastAttemptIP = *lastIP
	}
	return &st, nil
}

// Get reads the lockout state without locking the row
func (r *LockoutRepository) Get(ctx context.Context, accountID string) (*models.LockoutState, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return nil, models.ErrNotFound
	}
	query := `SELECT ` + lockoutColumns + ` FROM users WHERE id = $1`
	return scanLockoutRow(r.db.Pool.QueryRow(ctx, query, accountID))
}

// Update loads the state under SELECT ... FOR UPDATE, applies fn and writes
// the result back in the same transaction. When fn returns an error nothing
// is written and the error is returned unchanged.
func (r *LockoutRepository) Update(ctx context.Context, accountID string, fn func(*models.LockoutState) error) error {
	if _, err := uuid.Parse(accountID); err != nil {
		return models.ErrNotFound
	}

	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + lockoutColumns + ` FROM users WHERE id = $1 FOR UPDATE`
		st, err := scanLockoutRow(tx.QueryRow(ctx, query, accountID))
		if err != nil {
			return err
		}

		if err := fn(st); err != nil {
			return err
		}

		lockedUntil, permanent := st.Lock.Columns()
		var lastIP *string
		if st.LastAttemptIP != "" {
			lastIP = &st.LastAttemptIP
		}

		_, err = tx.Exec(ctx, `
			UPDATE users
			SET failed_login_attempts = $1, locked_until = $2, lock_permanent = $3, lock_count = $4,
			    last_login_attempt = $5, last_login_ip = $6, updated_at = NOW()
			WHERE id = $7`,
			st.FailedAttempts, lockedUntil, permanent, st.LockCount,
			st.LastAttemptAt, lastIP, accountID,
		)
		if err != nil {
			return fmt.Errorf("failed to write lockout state: %w", database.MapPostgresError(err))
		}
		return nil
	})
}
