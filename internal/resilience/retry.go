package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxAttempts       int           // Attempts including the first call
	InitialBackoff    time.Duration // Initial backoff duration
	MaxBackoff        time.Duration // Maximum backoff duration
	BackoffMultiplier float64       // Multiplier for exponential backoff
	Jitter            bool          // Add up to 25% random jitter to each backoff
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// IsRetryableError checks if an error is retryable
type IsRetryableError func(error) bool

// Retry executes fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx is done. The last error is returned as is.
func Retry(ctx context.Context, fn RetryableFunc, config *RetryConfig, isRetryable IsRetryableError) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == config.MaxAttempts-1 {
			break
		}

		sleep := CalculateBackoff(attempt, config.InitialBackoff, config.MaxBackoff, config.BackoffMultiplier)
		if config.Jitter && sleep > 0 {
			sleep += time.Duration(rand.Int63n(int64(sleep)/4 + 1))
		}
		if config.MaxBackoff > 0 && sleep > config.MaxBackoff {
			sleep = config.MaxBackoff
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

// CalculateBackoff calculates the backoff duration for a given attempt.
// A zero maxBackoff means no cap.
func CalculateBackoff(attempt int, initialBackoff time.Duration, maxBackoff time.Duration, multiplier float64) time.Duration {
	backoff := time.Duration(float64(initialBackoff) * math.Pow(multiplier, float64(attempt)))
	if maxBackoff > 0 && backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}

// IsTransient reports whether err is worth retrying: explicitly marked
// retryable errors, timeouts and connection-level network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if IsRetryable(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return IsRetryableNetworkError(err)
}

// IsRetryableNetworkError checks the error text for connection and timeout failures
func IsRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	return containsAny(errStr, []string{
		// Connection errors
		"connection refused",
		"connection reset",
		"connection closed",
		"broken pipe",
		"unexpected eof",
		"network is unreachable",
		"no route to host",
		// Timeout errors
		"deadline exceeded",
		"timeout",
		// Resource exhaustion (may be temporary)
		"too many requests",
		"rate limit",
	})
}

func containsAny(s string, substrings []string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// IsRetryableStatus reports whether an HTTP status from a collaborator is transient.
func IsRetryableStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

// RetryableError wraps an error to indicate it's retryable
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable checks if an error is a RetryableError
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
