package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("user-1"))
	assert.True(t, rl.Allow("user-1"))
	assert.False(t, rl.Allow("user-1"))
	assert.True(t, rl.Allow("user-2"), "keys are limited independently")

	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow("user-1"), "one token refills every half window")
	assert.False(t, rl.Allow("user-1"))
}

func TestRateLimiterEvictsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("user-1")
	rl.Allow("user-2")
	now = now.Add(30 * time.Second)
	rl.Allow("user-2")
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, rl.evict())
	assert.True(t, rl.Allow("user-1"))
}

func TestRateLimiterCloseIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Close()
	rl.Close()
}
