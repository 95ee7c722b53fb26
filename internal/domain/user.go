// Package domain contains core domain types for the mailsmith application.
package domain

import (
	"time"
)

// User is an anonymous per-device identity.
type User struct {
	UserID     string    `json:"user_id"     db:"user_id"`
	Username   string    `json:"username"    db:"username"`
	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"  db:"updated_at"`
}

// SessionRecord is the registry row of one browser-tab session.
// Drafts and slots are never persisted; only the lifecycle is.
type SessionRecord struct {
	UserID     string     `json:"user_id"      db:"user_id"`
	SessionID  string     `json:"session_id"   db:"session_id"`
	CreatedAt  time.Time  `json:"created_at"   db:"created_at"`
	LastSeenAt time.Time  `json:"last_seen_at" db:"last_seen_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// Active reports whether the session has not been torn down.
func (s *SessionRecord) Active() bool {
	return s.EndedAt == nil
}
