package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, password_hash, name, role, status, created_at, updated_at`

// UserRepository reads and provisions accounts. Lockout counters on the
// same row belong to LockoutRepository.
type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) queryOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	user, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[models.User])
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return user, nil
}

// GetByID treats a malformed id as an unknown account
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail matches case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`,
		strings.TrimSpace(email))
}

// Create inserts user with a fresh id and a normalised email. Timestamps
// come from the database. A duplicate email is models.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	role, status := user.Role, user.Status
	if role == "" {
		role = models.RoleUser
	}
	if status == "" {
		status = models.StatusActive
	}

	created, err := r.queryOne(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		uuid.NewString(), strings.ToLower(strings.TrimSpace(user.Email)),
		user.PasswordHash, user.Name, role, status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return created, nil
}
