package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/slots"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func draft(id, full string) domain.EmailDraft {
	return domain.EmailDraft{ID: id, Subject: id, Body: full, FullText: full}
}

func TestArenaOpenGetClose(t *testing.T) {
	a := NewArena()

	_, err := a.Get("u1", "s1")
	require.ErrorIs(t, err, ErrNotFound)

	s := a.Open("u1", "s1")
	assert.Same(t, s, a.Open("u1", "s1"))
	assert.NotSame(t, s, a.Open("u1", "s2"))
	assert.NotSame(t, s, a.Open("u2", "s1"))
	assert.Equal(t, 3, a.Len())

	got, err := a.Get("u1", "s1")
	require.NoError(t, err)
	assert.Same(t, s, got)

	assert.True(t, a.Close("u1", "s1"))
	assert.False(t, a.Close("u1", "s1"))
	_, err = a.Get("u1", "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionDraftDedup(t *testing.T) {
	s := NewArena().Open("u1", "s1")

	added := s.AddDrafts(draft("a", "Subject: A\n\nBody"), draft("b", "Subject: B\n\nBody"))
	assert.Len(t, added, 2)

	added = s.AddDrafts(draft("a2", "Subject: A\n\nBody"))
	assert.Empty(t, added)

	added = s.AddDrafts(draft("c", "Subject: A\n\nBody "))
	assert.Len(t, added, 1, "dedup is exact, not fuzzy")

	drafts := s.Drafts()
	require.Len(t, drafts, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{drafts[0].ID, drafts[1].ID, drafts[2].ID})

	d, ok := s.Draft("b")
	require.True(t, ok)
	assert.Equal(t, "Subject: B\n\nBody", d.FullText)
	_, ok = s.Draft("missing")
	assert.False(t, ok)

	assert.Equal(t, 3, s.ClearDrafts())
	assert.Empty(t, s.Drafts())
}

func TestSessionsAreIsolated(t *testing.T) {
	a := NewArena()
	a.Open("u1", "s1").AddDrafts(draft("a", "same"))
	added := a.Open("u1", "s2").AddDrafts(draft("a", "same"))
	assert.Len(t, added, 1)
}

func TestSessionSlotsAndSnapshot(t *testing.T) {
	clock := newClock()
	a := NewArena(WithClock(clock.Now))
	s := a.Open("u1", "s1")

	res := s.UpdateSlots(slots.Record{Purpose: "apology", Context: "late reply", Tone: "formal"})
	assert.True(t, res.ReadyToGenerate)
	require.NoError(t, s.MarkGenerated())
	s.AddDrafts(draft("a", "x"))

	clock.Advance(time.Minute)
	a.Open("u1", "s1")

	snap := s.Snapshot()
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, "s1", snap.SessionID)
	assert.Equal(t, slots.StateGenerated, snap.Slots.State)
	assert.Equal(t, 1, snap.DraftCount)
	assert.Equal(t, time.Minute, snap.LastSeenAt.Sub(snap.CreatedAt))
	assert.Equal(t, slots.StateGenerated, s.Slots().State)
}

func TestArenaSweep(t *testing.T) {
	clock := newClock()
	a := NewArena(WithClock(clock.Now))

	a.Open("u1", "old")
	clock.Advance(30 * time.Minute)
	a.Open("u1", "new")
	clock.Advance(31 * time.Minute)

	removed := a.Sweep(time.Hour)
	assert.Equal(t, []Key{{UserID: "u1", SessionID: "old"}}, removed)
	assert.Equal(t, 1, a.Len())
}

func TestArenaConcurrentOpen(t *testing.T) {
	a := NewArena()
	var wg sync.WaitGroup
	sessions := make([]*Session, 16)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i] = a.Open("u1", "s1")
			sessions[i].AddDrafts(draft("a", "same"))
		}(i)
	}
	wg.Wait()

	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
	assert.Len(t, sessions[0].Drafts(), 1)
}
