package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})

	fail := func() error { return errBoom }
	assert.ErrorIs(t, cb.Execute(fail), errBoom)
	assert.ErrorIs(t, cb.Execute(fail), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	calls := 0
	err := cb.Execute(func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)

	time.Sleep(25 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { calls++; return nil }))
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	notFound := errors.New("not found")
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, notFound) },
	})
	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return notFound }), notFound)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerIgnoresStaleGeneration(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.now = func() time.Time { return now }

	// A slow request admitted while closed finishes after the breaker has
	// already opened and recovered; its failure must not re-open it.
	slow, err := cb.admit()
	require.NoError(t, err)
	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	now = now.Add(time.Second)
	assert.Equal(t, StateHalfOpen, cb.GetState())
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())

	cb.record(slow, errBoom)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Zero(t, cb.Counts().Failures)
}

func TestCircuitBreakerHalfOpenProbeLimit(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.now = func() time.Time { return now }
	_ = cb.Execute(func() error { return errBoom })
	now = now.Add(time.Second)

	_, err := cb.admit()
	require.NoError(t, err)
	_, err = cb.admit()
	assert.ErrorIs(t, err, ErrCircuitOpen)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, Counts{}, cb.Counts())
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("eventually succeeds", func(t *testing.T) {
		n := 0
		err := Retry(context.Background(), "op", cfg, func() error {
			n++
			if n < 3 {
				return errBoom
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		n := 0
		err := Retry(context.Background(), "op", cfg, func() error { n++; return errBoom })
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 4, n)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		c := cfg
		c.Retryable = func(err error) bool { return false }
		n := 0
		err := Retry(context.Background(), "op", c, func() error { n++; return errBoom })
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 1, n)
	})
}

func TestRetryPermanent(t *testing.T) {
	n := 0
	err := Retry(context.Background(), "op", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		n++
		return Permanent(errBoom)
	})
	assert.Equal(t, errBoom, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, Permanent(nil))
}

func TestRetryDelayIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}.withDefaults()
	for attempt := 1; attempt <= 20; attempt++ {
		d := cfg.delay(attempt)
		assert.GreaterOrEqual(t, d, cfg.InitialDelay)
		assert.LessOrEqual(t, d, cfg.MaxDelay)
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "scan", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = WithTimeout(context.Background(), time.Second, "scan", func(ctx context.Context) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)

	parent, cancel := context.WithCancel(context.Background())
	cancel()
	err = WithTimeout(parent, time.Second, "scan", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTimeoutWaitsForCallback(t *testing.T) {
	var finished bool
	err := WithTimeout(context.Background(), 5*time.Millisecond, "scan", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		finished = true
		return errBoom
	})
	assert.True(t, finished)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, errBoom)
}

func TestWithTimeoutKeepsLateSuccess(t *testing.T) {
	err := WithTimeout(context.Background(), time.Millisecond, "scan", func(ctx context.Context) error {
		time.Sleep(3 * time.Millisecond)
		return nil
	})
	assert.NoError(t, err)
}
