package admission

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a breaker rejects a call outright.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is one of closed, open, half-open.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitOpenError carries diagnostic detail when a breaker rejects a call.
type CircuitOpenError struct {
	Name       string
	Failures   int
	LastError  error
	OpenedAt   time.Time
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	msg := fmt.Sprintf("circuit %q open: %d consecutive failures", e.Name, e.Failures)
	if e.LastError != nil {
		msg += fmt.Sprintf(", last error: %v", e.LastError)
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %v", e.RetryAfter.Round(time.Second))
	}
	return msg
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// CircuitBreakerConfig configures one named breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	RecoverSuccesses int
	// ExpectedError reports whether err counts as a breaker failure.
	// A nil ExpectedError treats every non-nil error as a failure.
	ExpectedError func(error) bool
}

// CircuitBreaker wraps calls to one named external dependency.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig

	mu           sync.Mutex
	state        CircuitState
	failures     int
	successes    int
	lastFailTime time.Time
	lastError    error
	openedAt     time.Time
}

// NewCircuitBreaker returns a breaker named name with defaults filled
// in for any zero-valued field of cfg.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if cfg.RecoverSuccesses <= 0 {
		cfg.RecoverSuccesses = 3
	}
	return &CircuitBreaker{name: name, cfg: cfg, state: CircuitClosed}
}

// Name returns the breaker's dependency name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker currently admits calls, recording the
// outcome against the state machine.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if openErr := cb.canExecute(); openErr != nil {
		return openErr
	}
	err := fn()
	cb.recordResult(err)
	return err
}

func (cb *CircuitBreaker) canExecute() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if time.Since(cb.lastFailTime) > cb.cfg.ResetTimeout {
			cb.state = CircuitHalfOpen
			cb.successes = 0
			return nil
		}
		retryAfter := cb.cfg.ResetTimeout - time.Since(cb.openedAt)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &CircuitOpenError{
			Name:       cb.name,
			Failures:   cb.failures,
			LastError:  cb.lastError,
			OpenedAt:   cb.openedAt,
			RetryAfter: retryAfter,
		}
	default: // half-open
		return nil
	}
}

func (cb *CircuitBreaker) countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if cb.cfg.ExpectedError == nil {
		return true
	}
	return cb.cfg.ExpectedError(err)
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.countsAsFailure(err) {
		cb.failures++
		cb.lastFailTime = time.Now()
		cb.lastError = err
		cb.successes = 0

		if cb.state != CircuitOpen && cb.failures >= cb.cfg.FailureThreshold {
			cb.state = CircuitOpen
			cb.openedAt = time.Now()
		} else if cb.state == CircuitHalfOpen {
			cb.state = CircuitOpen
			cb.openedAt = time.Now()
		}
		return
	}

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.RecoverSuccesses {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.successes = 0
		}
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive-failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// LastError returns the most recently recorded failure.
func (cb *CircuitBreaker) LastError() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastError
}

// Reset restores the breaker to its initial closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.successes = 0
	cb.lastFailTime = time.Time{}
	cb.lastError = nil
	cb.openedAt = time.Time{}
}
