// Package resilience holds the fault-tolerance helpers shared by the
// services: a circuit breaker for optional backends, startup retry with
// backoff and a bounded-time runner for scans.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling fn while the breaker rejects work.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls when the breaker trips and how it probes.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	// OnStateChange is called with the lock held. It must not call back
	// into the breaker.
	OnStateChange func(name string, to State)
	// IsFailure picks the errors that count against the breaker. Every
	// non-nil error counts when unset.
	IsFailure func(err error) bool
}

// Counts is a snapshot of the current generation's outcomes.
type Counts struct {
	Requests            int
	Successes           int
	Failures            int
	ConsecutiveFailures int
}

// CircuitBreaker trips open after FailureThreshold consecutive failures,
// waits ResetTimeout, then lets up to HalfOpenMaxRequests probes through.
// Each state change starts a new generation; outcomes reported for an
// older generation are ignored.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	openedAt   time.Time
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
		now:    time.Now,
	}
}

// Execute runs fn when the breaker admits it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	generation, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(generation, err)
	return err
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	return cb.state
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset closes the breaker and starts a fresh generation.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
	cb.logger.Info("circuit manually reset")
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		return 0, fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, wait)
	case StateHalfOpen:
		if cb.counts.Requests >= cb.cfg.HalfOpenMaxRequests {
			return 0, fmt.Errorf("%w: %s (half-open probe limit reached)", ErrCircuitOpen, cb.name)
		}
	}
	cb.counts.Requests++
	return cb.generation, nil
}

func (cb *CircuitBreaker) record(generation uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	if generation != cb.generation {
		return
	}
	if !cb.cfg.IsFailure(err) {
		cb.counts.Successes++
		cb.counts.ConsecutiveFailures = 0
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
			cb.logger.Info("circuit closed (recovered)")
		}
		return
	}
	cb.counts.Failures++
	cb.counts.ConsecutiveFailures++
	switch cb.state {
	case StateClosed:
		if cb.counts.ConsecutiveFailures >= cb.cfg.FailureThreshold {
			cb.logger.Warn("circuit opened",
				"consecutive_failures", cb.counts.ConsecutiveFailures,
				"threshold", cb.cfg.FailureThreshold,
			)
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.logger.Warn("circuit re-opened (half-open probe failed)")
		cb.transition(StateOpen)
	}
}

// refresh moves an open breaker to half-open once ResetTimeout has passed.
func (cb *CircuitBreaker) refresh() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		cb.transition(StateHalfOpen)
		cb.logger.Info("circuit transitioning to half-open", "after", cb.cfg.ResetTimeout)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	cb.generation++
	cb.counts = Counts{}
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	if cb.state == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
