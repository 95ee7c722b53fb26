// Package session holds the per-session arena: slots and drafts keyed by
// (user, session), created on first use and torn down explicitly or by the
// idle sweeper. Nothing here is persisted.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/metrics"
	"github.com/ashureev/mailsmith/internal/slots"
)

// ErrNotFound is returned when a session is not in the arena.
var ErrNotFound = errors.New("session not found")

// Key identifies a session.
type Key struct {
	UserID    string
	SessionID string
}

// Session owns one conversation's slot record and drafts.
type Session struct {
	key       Key
	createdAt time.Time

	mu         sync.Mutex
	lastSeenAt time.Time
	tracker    *slots.Tracker
	drafts     []domain.EmailDraft
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	UserID     string       `json:"userId"`
	SessionID  string       `json:"sessionId"`
	Slots      slots.Result `json:"slots"`
	DraftCount int          `json:"draftCount"`
	CreatedAt  time.Time    `json:"createdAt"`
	LastSeenAt time.Time    `json:"lastSeenAt"`
}

// Key returns the session key.
func (s *Session) Key() Key { return s.key }

// AddDrafts appends drafts whose FullText is not already present and
// returns the ones actually added.
func (s *Session) AddDrafts(drafts ...domain.EmailDraft) []domain.EmailDraft {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := metrics.Get()
	var added []domain.EmailDraft
	for _, d := range drafts {
		if s.hasFullTextLocked(d.FullText) {
			m.DraftsDeduplicated.Inc()
			continue
		}
		s.drafts = append(s.drafts, d)
		added = append(added, d)
		m.DraftsStored.Inc()
	}
	return added
}

func (s *Session) hasFullTextLocked(fullText string) bool {
	for _, existing := range s.drafts {
		if existing.FullText == fullText {
			return true
		}
	}
	return false
}

// Drafts returns the drafts in creation order.
func (s *Session) Drafts() []domain.EmailDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EmailDraft, len(s.drafts))
	copy(out, s.drafts)
	return out
}

// Draft looks a draft up by ID.
func (s *Session) Draft(id string) (domain.EmailDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.drafts {
		if d.ID == id {
			return d, true
		}
	}
	return domain.EmailDraft{}, false
}

// ClearDrafts drops every draft and returns how many were removed.
func (s *Session) ClearDrafts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.drafts)
	s.drafts = nil
	return n
}

// UpdateSlots merges observed slot values into the session record.
func (s *Session) UpdateSlots(observed slots.Record) slots.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Update(observed)
}

// Slots returns the current slot result.
func (s *Session) Slots() slots.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Result()
}

// MarkGenerated records that an email was generated from the current slots.
func (s *Session) MarkGenerated() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.MarkGenerated()
}

// Snapshot returns a consistent view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		UserID:     s.key.UserID,
		SessionID:  s.key.SessionID,
		Slots:      s.tracker.Result(),
		DraftCount: len(s.drafts),
		CreatedAt:  s.createdAt,
		LastSeenAt: s.lastSeenAt,
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeenAt = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeenAt)
}

// Arena maps session keys to live sessions.
type Arena struct {
	mu       sync.RWMutex
	sessions map[Key]*Session
	now      func() time.Time
}

// ArenaOption configures an Arena.
type ArenaOption func(*Arena)

// WithClock overrides the arena time source.
func WithClock(now func() time.Time) ArenaOption {
	return func(a *Arena) { a.now = now }
}

// NewArena creates an empty arena.
func NewArena(opts ...ArenaOption) *Arena {
	a := &Arena{
		sessions: make(map[Key]*Session),
		now:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Open returns the session for key, creating it on first use, and marks it
// as seen.
func (a *Arena) Open(userID, sessionID string) *Session {
	key := Key{UserID: userID, SessionID: sessionID}
	now := a.now()

	a.mu.RLock()
	s, ok := a.sessions[key]
	a.mu.RUnlock()
	if ok {
		s.touch(now)
		return s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.sessions[key]; ok {
		s.touch(now)
		return s
	}
	s = &Session{
		key:        key,
		createdAt:  now,
		lastSeenAt: now,
		tracker:    slots.NewTracker(),
	}
	a.sessions[key] = s
	metrics.Get().ActiveSessions.Set(float64(len(a.sessions)))
	return s
}

// Get returns an existing session without creating one.
func (a *Arena) Get(userID, sessionID string) (*Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.sessions[Key{UserID: userID, SessionID: sessionID}]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close tears a session down. It reports whether the session existed.
func (a *Arena) Close(userID, sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := Key{UserID: userID, SessionID: sessionID}
	if _, ok := a.sessions[key]; !ok {
		return false
	}
	delete(a.sessions, key)
	metrics.Get().ActiveSessions.Set(float64(len(a.sessions)))
	return true
}

// Sweep removes sessions idle for longer than ttl and returns their keys.
func (a *Arena) Sweep(ttl time.Duration) []Key {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	var removed []Key
	for key, s := range a.sessions {
		if s.idleSince(now) > ttl {
			delete(a.sessions, key)
			removed = append(removed, key)
		}
	}
	if len(removed) > 0 {
		metrics.Get().ActiveSessions.Set(float64(len(a.sessions)))
	}
	return removed
}

// Len returns the number of live sessions.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}
