package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call while the breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation
	StateOpen                         // Circuit is open, requests fail immediately
	StateHalfOpen                     // Testing if service has recovered
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker guards one collaborator (chat or TTS).
type CircuitBreaker struct {
	name          string
	maxFailures   int           // Consecutive failures before opening circuit
	resetTimeout  time.Duration // Time to wait before attempting half-open
	halfOpenMax   int           // Trial requests (and successes needed) in half-open state
	halfOpenCount int

	mu                sync.Mutex
	state             CircuitState
	failureCount      int
	lastFailTime      time.Time
	successCount      int
	requestCount      int64
	failureCountTotal int64

	onResult func(name string, state CircuitState, success bool)
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  3,
		state:        StateClosed,
	}
}

// OnResult registers a callback fired (outside the lock) after every
// recorded result, with the state at that point.
func (cb *CircuitBreaker) OnResult(fn func(name string, state CircuitState, success bool)) {
	cb.mu.Lock()
	cb.onResult = fn
	cb.mu.Unlock()
}

// Name returns the guarded collaborator name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Call executes a function with circuit breaker protection. Only errors
// matching isFailure (every error when nil) trip the breaker; any other
// error counts as a success, and a canceled call records nothing.
func (cb *CircuitBreaker) Call(fn func() error, isFailure func(error) bool) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()
	switch {
	case err == nil:
		cb.RecordResult(true)
	case errors.Is(err, context.Canceled):
		cb.release()
	case isFailure == nil || isFailure(err):
		cb.RecordResult(false)
	default:
		cb.RecordResult(true)
	}

	return err
}

// release returns a half-open trial slot without recording a result.
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.halfOpenCount > 0 {
		cb.halfOpenCount--
	}
}

// allowRequest checks if a request should be allowed
func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.lastFailTime) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenCount = 1
			cb.successCount = 0
			return true
		}
		return false

	case StateHalfOpen:
		if cb.halfOpenCount < cb.halfOpenMax {
			cb.halfOpenCount++
			return true
		}
		return false
	}

	return false
}

// RecordResult records the result of a request
func (cb *CircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	cb.requestCount++
	if success {
		cb.recordSuccess()
	} else {
		cb.recordFailure()
	}
	state := cb.state
	notify := cb.onResult
	cb.mu.Unlock()

	if notify != nil {
		notify(cb.name, state, success)
	}
}

// recordSuccess records a successful request
func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.halfOpenCount = 0
			cb.successCount = 0
		}
	}
}

// recordFailure records a failed request
func (cb *CircuitBreaker) recordFailure() {
	cb.failureCountTotal++
	cb.lastFailTime = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}

	case StateHalfOpen:
		// Any failure in half-open immediately opens the circuit
		cb.state = StateOpen
		cb.halfOpenCount = 0
		cb.successCount = 0
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() (state CircuitState, requestCount, failureCount int64, failureRate float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state = cb.state
	requestCount = cb.requestCount
	failureCount = cb.failureCountTotal

	if requestCount > 0 {
		failureRate = float64(failureCount) / float64(requestCount) * 100.0
	}

	return
}
