package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestAllowConsumesAndRefills(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := newLimiter(time.Second, clock.now)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("acme", 3), "request %d", i)
	}
	assert.False(t, l.Allow("acme", 3))

	clock.t = clock.t.Add(time.Second / 3)
	assert.True(t, l.Allow("acme", 3))
	assert.False(t, l.Allow("acme", 3))

	clock.t = clock.t.Add(time.Second)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("acme", 3), "whole window refills the bucket, request %d", i)
	}
	assert.False(t, l.Allow("acme", 3))

	clock.t = clock.t.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("acme", 3))
	}
	assert.False(t, l.Allow("acme", 3), "bucket is capped at the limit")
}

func TestRefillAfterExactlyOnePeriod(t *testing.T) {
	tests := []struct {
		window time.Duration
		limit  int
	}{
		{time.Second, 3},
		{time.Minute, 7},
		{3 * time.Second, 3},
		{time.Second, 100},
	}
	for _, tt := range tests {
		clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
		l := newLimiter(tt.window, clock.now)
		for i := 0; i < tt.limit; i++ {
			assert.True(t, l.Allow("acme", tt.limit))
		}
		assert.False(t, l.Allow("acme", tt.limit))

		clock.t = clock.t.Add(tt.window / time.Duration(tt.limit))
		assert.True(t, l.Allow("acme", tt.limit), "window=%s limit=%d", tt.window, tt.limit)
		assert.False(t, l.Allow("acme", tt.limit), "window=%s limit=%d", tt.window, tt.limit)
	}
}

func TestTenantsHaveSeparateBuckets(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := newLimiter(time.Minute, clock.now)

	assert.True(t, l.Allow("a", 1))
	assert.False(t, l.Allow("a", 1))
	assert.True(t, l.Allow("b", 1))

	l.Reset("a")
	assert.True(t, l.Allow("a", 1))
}

func TestNonPositiveLimitIsUnlimited(t *testing.T) {
	l := newLimiter(time.Minute, time.Now)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("a", 0))
	}
}

func TestEvictStale(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := newLimiter(time.Second, clock.now)
	l.Allow("old", 1)
	clock.t = clock.t.Add(10 * time.Second)
	l.Allow("fresh", 1)

	l.evictStale()
	assert.NotContains(t, l.entries, "old")
	assert.Contains(t, l.entries, "fresh")
}

func TestCloseIsIdempotent(t *testing.T) {
	l := New(time.Second)
	l.Close()
	l.Close()
}
