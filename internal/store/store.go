// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/mailsmith/internal/domain"
)

// Repository persists anonymous identities and the session registry.
// Conversations, slots and drafts are never stored.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil if not found.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// TouchSession registers a session or refreshes its last_seen_at.
	// A previously ended session is reopened.
	TouchSession(ctx context.Context, userID, sessionID string, at time.Time) error

	// GetSession retrieves one session record. Returns nil, nil if not found.
	GetSession(ctx context.Context, userID, sessionID string) (*domain.SessionRecord, error)

	// EndSession marks a session as torn down.
	EndSession(ctx context.Context, userID, sessionID string, at time.Time) error

	// GetExpiredSessions returns active sessions idle for longer than ttl.
	GetExpiredSessions(ctx context.Context, ttl time.Duration) ([]*domain.SessionRecord, error)

	// CleanupEndedSessions deletes ended sessions older than retention.
	CleanupEndedSessions(ctx context.Context, retention time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
