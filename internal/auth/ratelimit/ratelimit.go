// Package ratelimit enforces per-tenant request budgets with an in-memory
// token bucket.
package ratelimit

import (
	"sync"
	"time"
)

const refillTolerance = 1e-9

// entry tracks the token-bucket state for a single tenant.
type entry struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter implements an in-memory token-bucket rate limiter.
// Tokens refill at a rate of (limit / window) per second.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	window  time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// New creates a rate limiter with the given refill window.
// Each tenant gets `limit` tokens per window, refilled continuously.
func New(window time.Duration) *Limiter {
	l := newLimiter(window, time.Now)
	go l.cleanup(5 * time.Minute)
	return l
}

func newLimiter(window time.Duration, now func() time.Time) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		entries: make(map[string]*entry),
		window:  window,
		now:     now,
		stop:    make(chan struct{}),
	}
}

// Allow checks whether the tenant has remaining capacity.
// It consumes one token on success and returns true.
// Returns false when the rate limit has been exceeded. A non-positive limit
// disables limiting for the call.
func (l *Limiter) Allow(tenantID string, limit int) bool {
	if limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, exists := l.entries[tenantID]
	if !exists {
		l.entries[tenantID] = &entry{
			tokens:    float64(limit - 1),
			lastCheck: now,
		}
		return true
	}

	elapsed := now.Sub(e.lastCheck)
	e.lastCheck = now

	rate := float64(limit) / l.window.Seconds()
	e.tokens = min(e.tokens+elapsed.Seconds()*rate, float64(limit))

	// Durations are whole nanoseconds, so a refill of exactly window/limit
	// can land a hair under one token.
	if e.tokens < 1-refillTolerance {
		return false
	}

	e.tokens--
	return true
}

// Reset clears the rate-limit state for a specific tenant.
func (l *Limiter) Reset(tenantID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, tenantID)
}

// Close stops the background cleanup.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

// cleanup periodically removes stale entries to prevent memory leaks.
func (l *Limiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictStale()
		}
	}
}

func (l *Limiter) evictStale() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, e := range l.entries {
		if e.lastCheck.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}
