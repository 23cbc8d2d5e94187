package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository is the retained login audit trail. Rows are keyed
// by lowercased email so unknown accounts are recorded too.
type LoginAttemptRepository struct {
	db *database.DB
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO login_attempts (id, email, ip_address, user_agent, attempt_time, success, failure_reason, expires_at)
		VALUES (@id, @email, @ip, @agent, @at, @success, @reason, @expires)`,
		pgx.NamedArgs{
			"id":      attempt.ID,
			"email":   strings.ToLower(attempt.Email),
			"ip":      attempt.IPAddress,
			"agent":   attempt.UserAgent,
			"at":      attempt.AttemptTime,
			"success": attempt.Success,
			"reason":  attempt.FailureReason,
			"expires": attempt.ExpiresAt,
		})
	if err != nil {
		return fmt.Errorf("record login attempt: %w", database.MapPostgresError(err))
	}
	return nil
}

// CountFailuresSince counts failed attempts for email at or after since
func (r *LoginAttemptRepository) CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = @email AND NOT success AND attempt_time >= @since`,
		pgx.NamedArgs{"email": strings.ToLower(email), "since": since},
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count login failures: %w", err)
	}
	return n, nil
}

// DeleteExpiredAttempts is the sweep target for the audit trail. A row
// expires at its expires_at instant.
func (r *LoginAttemptRepository) DeleteExpiredAttempts(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired login attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}
