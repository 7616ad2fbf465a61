package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_FixedWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"), "third event in the window is dropped")
	assert.True(t, rl.Allow("b"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"), "a new window starts fresh")
}

func TestRateLimiter_ForgetAndCleanup(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(1, time.Second)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	assert.False(t, rl.Allow("a"))
	rl.Forget("a")
	assert.True(t, rl.Allow("a"))

	now = now.Add(3 * time.Second)
	rl.Allow("b")
	assert.Equal(t, 2, rl.Len())

	now = now.Add(3 * time.Second)
	rl.Cleanup()
	assert.Equal(t, 1, rl.Len(), "only a is idle for more than five windows")
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("a"))
	}
	assert.Zero(t, rl.Len())
}
