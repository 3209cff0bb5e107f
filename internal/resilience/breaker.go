// Package resilience provides a circuit breaker for remote data
// providers. A provider that keeps failing gets fast-failed for a
// cooldown period instead of eating a timeout per symbol.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker's current disposition toward calls.
type State string

const (
	StateClosed   State = "CLOSED"    // normal operation
	StateOpen     State = "OPEN"      // failing, rejecting calls
	StateHalfOpen State = "HALF_OPEN" // probing for recovery
)

// ErrOpen is returned when the breaker rejects a call outright.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds breaker thresholds.
type Config struct {
	// FailureThreshold opens the breaker after this many consecutive
	// failures.
	FailureThreshold int

	// SuccessThreshold closes a half-open breaker after this many
	// consecutive probe successes.
	SuccessThreshold int

	// Cooldown is how long an open breaker rejects calls before
	// allowing a probe.
	Cooldown time.Duration
}

// DefaultConfig returns thresholds suited to batch fetching.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// Breaker tracks consecutive failures of one dependency.
type Breaker struct {
	name string
	cfg  Config

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time

	totalCalls     int64
	totalFailures  int64
	totalSuccesses int64
	totalRejected  int64
}

// NewBreaker creates a breaker in the closed state. Zero config fields
// fall back to defaults.
func NewBreaker(name string, cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{name: name, cfg: cfg, state: StateClosed}
}

// Call runs fn under the breaker. A rejected call returns ErrOpen
// without invoking fn.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}

	result, err := fn()
	if err != nil {
		b.RecordFailure()
		return zero, err
	}
	b.RecordSuccess()
	return result, nil
}

// Do runs fn under the breaker when no result is needed.
func (b *Breaker) Do(fn func() error) error {
	_, err := Call(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Allow reports whether a call may proceed, returning ErrOpen when the
// breaker rejects it. Callers pairing Allow with RecordSuccess and
// RecordFailure classify outcomes themselves.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++
	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) > b.cfg.Cooldown {
			b.transition(StateHalfOpen)
			return nil
		}
		b.totalRejected++
		return ErrOpen
	default:
		return nil
	}
}

// RecordSuccess feeds a success into the state machine. Callers that
// classify errors themselves use this instead of Call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalSuccesses++
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	case StateClosed:
		b.failures = 0
	}
}

// RecordFailure feeds a failure into the state machine.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures++
	b.lastFailure = time.Now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		// Any probe failure reopens.
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(state State) {
	b.state = state
	b.failures = 0
	b.successes = 0
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Stats is a counter snapshot.
type Stats struct {
	Name      string
	State     State
	Calls     int64
	Successes int64
	Failures  int64
	Rejected  int64
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Name:      b.name,
		State:     b.state,
		Calls:     b.totalCalls,
		Successes: b.totalSuccesses,
		Failures:  b.totalFailures,
		Rejected:  b.totalRejected,
	}
}
