package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/shared"
	"github.com/ashureev/mailsmith/internal/store/migrations"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Repository = (*SQLiteStore)(nil)

type userRow struct {
	UserID     string `db:"user_id"`
	Username   string `db:"username"`
	LastSeenAt int64  `db:"last_seen_at"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		UserID:     r.UserID,
		Username:   r.Username,
		LastSeenAt: time.Unix(r.LastSeenAt, 0),
		CreatedAt:  time.Unix(r.CreatedAt, 0),
		UpdatedAt:  time.Unix(r.UpdatedAt, 0),
	}
}

type sessionRow struct {
	UserID     string        `db:"user_id"`
	SessionID  string        `db:"session_id"`
	CreatedAt  int64         `db:"created_at"`
	LastSeenAt int64         `db:"last_seen_at"`
	EndedAt    sql.NullInt64 `db:"ended_at"`
}

func (r sessionRow) toDomain() *domain.SessionRecord {
	rec := &domain.SessionRecord{
		UserID:     r.UserID,
		SessionID:  r.SessionID,
		CreatedAt:  time.Unix(r.CreatedAt, 0),
		LastSeenAt: time.Unix(r.LastSeenAt, 0),
	}
	if r.EndedAt.Valid {
		ended := time.Unix(r.EndedAt.Int64, 0)
		rec.EndedAt = &ended
	}
	return rec
}

// NewSQLite creates a new SQLite-backed repository and applies migrations.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := applyMigrations(db.DB); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("close database after migration failure", "error", closeErr)
		}
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func applyMigrations(db *sql.DB) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Debug("no database migrations to apply")
			return nil
		}
		return err
	}
	slog.Info("database migrations applied")
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return row.toDomain(), nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	row := userRow{
		UserID:     user.UserID,
		Username:   user.Username,
		LastSeenAt: user.LastSeenAt.Unix(),
		CreatedAt:  user.CreatedAt.Unix(),
		UpdatedAt:  user.UpdatedAt.Unix(),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
		VALUES (:user_id, :username, :last_seen_at, :created_at, :updated_at)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at`, row)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`,
		lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

// TouchSession registers a session or refreshes its last_seen_at.
func (s *SQLiteStore) TouchSession(ctx context.Context, userID, sessionID string, at time.Time) error {
	return withBusyRetry(ctx, "touch session", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (user_id, session_id, created_at, last_seen_at, ended_at)
			VALUES (?, ?, ?, ?, NULL)
			ON CONFLICT(user_id, session_id) DO UPDATE SET
				last_seen_at = excluded.last_seen_at,
				ended_at = NULL`,
			userID, sessionID, at.Unix(), at.Unix())
		return err
	})
}

// GetSession retrieves one session record.
func (s *SQLiteStore) GetSession(ctx context.Context, userID, sessionID string) (*domain.SessionRecord, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, session_id, created_at, last_seen_at, ended_at
		FROM sessions WHERE user_id = ? AND session_id = ?`, userID, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return row.toDomain(), nil
}

// EndSession marks a session as torn down.
func (s *SQLiteStore) EndSession(ctx context.Context, userID, sessionID string, at time.Time) error {
	return withBusyRetry(ctx, "end session", func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET ended_at = ? WHERE user_id = ? AND session_id = ? AND ended_at IS NULL`,
			at.Unix(), userID, sessionID)
		return err
	})
}

// GetExpiredSessions returns active sessions idle for longer than ttl.
func (s *SQLiteStore) GetExpiredSessions(ctx context.Context, ttl time.Duration) ([]*domain.SessionRecord, error) {
	threshold := time.Now().Add(-ttl).Unix()

	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, session_id, created_at, last_seen_at, ended_at
		FROM sessions WHERE ended_at IS NULL AND last_seen_at < ?
		ORDER BY last_seen_at`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", err)
	}

	out := make([]*domain.SessionRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// CleanupEndedSessions deletes ended sessions older than retention.
func (s *SQLiteStore) CleanupEndedSessions(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).Unix()
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE ended_at IS NOT NULL AND ended_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup ended sessions: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// withBusyRetry retries op with exponential backoff on SQLite lock errors.
func withBusyRetry(ctx context.Context, name string, op func() error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		if err = op(); err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("database locked, retrying", "op", name, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}
