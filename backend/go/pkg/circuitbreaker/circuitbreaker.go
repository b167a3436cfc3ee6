package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where calls are allowed.
	Closed State = iota
	// Open is when the circuit has tripped and calls are rejected.
	Open
	// HalfOpen lets trial calls through to probe recovery.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to an unreliable dependency.
type CircuitBreaker interface {
	// Do runs fn unless the circuit is open.
	Do(fn func() error) error
	// State returns the current state of the circuit breaker.
	State() State
}

// Option customises a breaker.
type Option func(*breaker)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *breaker) { b.now = now }
}

type breaker struct {
	failureThreshold     uint32        // Consecutive failures that trip the circuit.
	successThreshold     uint32        // Consecutive half-open successes that close it again.
	timeout              time.Duration // How long the circuit stays open before probing.
	consecutiveSuccesses uint32
	consecutiveFailures  uint32
	openedAt             time.Time
	state                State
	now                  func() time.Time
	mutex                sync.Mutex
}

// New creates a breaker that opens after failureThreshold consecutive failures,
// probes after timeout, and closes after successThreshold half-open successes.
func New(failureThreshold, successThreshold uint32, timeout time.Duration, opts ...Option) CircuitBreaker {
	if failureThreshold == 0 {
		failureThreshold = 1
	}
	if successThreshold == 0 {
		successThreshold = 1
	}
	b := &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            Closed,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state, applying the open→half-open transition if due.
func (b *breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.advance()
	return b.state
}

// Do wraps fn with the circuit breaker logic.
func (b *breaker) Do(fn func() error) error {
	b.mutex.Lock()
	b.advance()
	if b.state == Open {
		b.mutex.Unlock()
		return ErrCircuitOpen
	}
	b.mutex.Unlock()

	if err := fn(); err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// advance moves an expired Open circuit to HalfOpen. Caller holds the mutex.
func (b *breaker) advance() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.timeout {
		b.state = HalfOpen
		b.consecutiveSuccesses = 0
	}
}

func (b *breaker) onSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case HalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.successThreshold {
			b.reset()
		}
	case Closed:
		b.consecutiveFailures = 0
	}
}

func (b *breaker) onFailure() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.trip()
		}
	}
}

func (b *breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
}

func (b *breaker) reset() {
	b.state = Closed
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
}
