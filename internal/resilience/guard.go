package resilience

import (
	"context"
	"time"
)

// Guard bounds every call to one collaborator. Each attempt runs under its
// own timeout and through the circuit breaker, and transient failures are
// retried per the retry config. Only transient failures count against the
// breaker.
type Guard struct {
	Breaker *CircuitBreaker
	Retry   *RetryConfig
	Timeout time.Duration
}

// NewGuard creates a guard. A nil retry config means a single attempt.
func NewGuard(breaker *CircuitBreaker, retry *RetryConfig, timeout time.Duration) *Guard {
	if retry == nil {
		retry = &RetryConfig{MaxAttempts: 1}
	}
	return &Guard{Breaker: breaker, Retry: retry, Timeout: timeout}
}

// Do runs fn under the guard.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return Retry(ctx, func(ctx context.Context) error {
		attempt := func() error {
			if g.Timeout <= 0 {
				return fn(ctx)
			}
			attemptCtx, cancel := context.WithTimeout(ctx, g.Timeout)
			defer cancel()
			return fn(attemptCtx)
		}

		if g.Breaker == nil {
			return attempt()
		}
		return g.Breaker.Call(attempt, IsTransient)
	}, g.Retry, IsTransient)
}
