package router

import (
	"sync"
	"time"
)

// RateLimiter implements a per-connection fixed-window event ceiling
// ARCHITECTURAL DISCOVERY: Per-connection state tracking with explicit Forget on
// disconnect prevents memory leaks
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*clientLimit
	now     func() time.Time
}

// clientLimit tracks the current window of a single connection
type clientLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter allows limit events per window for each key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientLimit),
		now:     time.Now,
	}
}

// Allow records one event for key and reports whether it is within the ceiling.
// FUNCTIONAL DISCOVERY: excess events are dropped, never queued
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, exists := rl.clients[key]
	if !exists || now.Sub(c.windowStart) >= rl.window {
		rl.clients[key] = &clientLimit{count: 1, windowStart: now}
		return true
	}

	if c.count >= rl.limit {
		return false
	}
	c.count++
	return true
}

// Forget drops the state of key once its connection is gone.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, key)
}

// Cleanup removes entries idle for more than five windows.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, c := range rl.clients {
		if now.Sub(c.windowStart) > 5*rl.window {
			delete(rl.clients, key)
		}
	}
}

// Len reports how many keys are tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
