package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ReconnectConfig holds configuration for reconnection logic
type ReconnectConfig struct {
	MaxAttempts int           // Maximum number of attempts
	Backoff     time.Duration // Backoff duration between attempts
	Multiplier  float64       // Backoff multiplier for exponential backoff
	MaxBackoff  time.Duration // Maximum backoff duration
}

// DefaultReconnectConfig returns a default reconnection configuration
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		MaxAttempts: 10,
		Backoff:     1 * time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// ReconnectFunc is a function that attempts to reach a collaborator
type ReconnectFunc func(ctx context.Context) error

// Reconnect calls fn until it succeeds, with exponential backoff between
// attempts. Used at startup to wait for the speech model server to finish
// loading.
func Reconnect(ctx context.Context, fn ReconnectFunc, config *ReconnectConfig, logger zerolog.Logger) error {
	if config == nil {
		config = DefaultReconnectConfig()
	}

	backoff := config.Backoff
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 0 {
				logger.Info().Int("attempts", attempt+1).Msg("Collaborator reachable")
			}
			return nil
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		logger.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Int("max_attempts", config.MaxAttempts).
			Dur("retry_in", backoff).
			Msg("Collaborator not reachable yet")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * config.Multiplier)
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	return fmt.Errorf("failed to reach collaborator after %d attempts: %w", config.MaxAttempts, lastErr)
}
