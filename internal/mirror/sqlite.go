package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists mirror state in a local SQLite file so a device keeps
// its cached lock across restarts
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens or creates the database at path. Use ":memory:" in tests.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serialises writers
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS lockout_mirror (
		identifier            TEXT PRIMARY KEY,
		failed_attempts       INTEGER NOT NULL DEFAULT 0,
		remaining_attempts    INTEGER NOT NULL DEFAULT 0,
		max_attempts          INTEGER NOT NULL DEFAULT 0,
		locked_until          INTEGER,
		permanent             INTEGER NOT NULL DEFAULT 0,
		lock_escalation_count INTEGER NOT NULL DEFAULT 0,
		last_synced_at        INTEGER,
		provisional           INTEGER NOT NULL DEFAULT 0,
		server_snapshot       TEXT
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, identifier string) (*State, error) {
	var (
		st                        State
		lockedUntil, lastSyncedAt sql.NullInt64
		permanent, provisional    bool
		snapshot                  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT identifier, failed_attempts, remaining_attempts, max_attempts, locked_until,
		       permanent, lock_escalation_count, last_synced_at, provisional, server_snapshot
		FROM lockout_mirror WHERE identifier = ?`, identifier,
	).Scan(
		&st.Identifier, &st.FailedAttempts, &st.RemainingAttempts, &st.MaxAttempts, &lockedUntil,
		&permanent, &st.LockEscalationCount, &lastSyncedAt, &provisional, &snapshot,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load mirror state: %w", err)
	}

	st.Permanent = permanent
	st.Provisional = provisional
	st.LockedUntil = fromMillis(lockedUntil)
	st.LastSyncedAt = fromMillis(lastSyncedAt)
	if snapshot.Valid && snapshot.String != "" {
		var snap Snapshot
		if err := json.Unmarshal([]byte(snapshot.String), &snap); err != nil {
			return nil, fmt.Errorf("sqlite: corrupt server snapshot: %w", err)
		}
		st.Server = &snap
	}
	return &st, nil
}

func (s *SQLiteStore) Save(ctx context.Context, st *State) error {
	var snapshot sql.NullString
	if st.Server != nil {
		b, err := json.Marshal(st.Server)
		if err != nil {
			return fmt.Errorf("sqlite: failed to encode snapshot: %w", err)
		}
		snapshot = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lockout_mirror (
			identifier, failed_attempts, remaining_attempts, max_attempts, locked_until,
			permanent, lock_escalation_count, last_synced_at, provisional, server_snapshot
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			failed_attempts = excluded.failed_attempts,
			remaining_attempts = excluded.remaining_attempts,
			max_attempts = excluded.max_attempts,
			locked_until = excluded.locked_until,
			permanent = excluded.permanent,
			lock_escalation_count = excluded.lock_escalation_count,
			last_synced_at = excluded.last_synced_at,
			provisional = excluded.provisional,
			server_snapshot = excluded.server_snapshot`,
		st.Identifier, st.FailedAttempts, st.RemainingAttempts, st.MaxAttempts, toMillis(st.LockedUntil),
		st.Permanent, st.LockEscalationCount, toMillis(st.LastSyncedAt), st.Provisional, snapshot,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save mirror state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, identifier string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM lockout_mirror WHERE identifier = ?`, identifier); err != nil {
		return fmt.Errorf("sqlite: failed to delete mirror state: %w", err)
	}
	return nil
}

func toMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
