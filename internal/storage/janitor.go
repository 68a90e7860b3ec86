package storage

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reply/internal/observability"
)

// staleTempAge is how old a partial write must be before it is treated as
// abandoned. Saves finish in well under a second.
const staleTempAge = 10 * time.Minute

// Janitor bounds the output directory by age and by file count, and clears
// partial writes left by a crash.
type Janitor struct {
	store    *FileStore
	ttl      time.Duration
	maxFiles int
	interval time.Duration
	logger   zerolog.Logger
}

// NewJanitor creates a janitor. A zero ttl or maxFiles disables that bound.
func NewJanitor(store *FileStore, ttl time.Duration, maxFiles int, interval time.Duration, logger zerolog.Logger) *Janitor {
	return &Janitor{
		store:    store,
		ttl:      ttl,
		maxFiles: maxFiles,
		interval: interval,
		logger:   logger.With().Str("component", "janitor").Logger(),
	}
}

// Sweep removes abandoned partial writes and expired artifacts, then the
// oldest artifacts beyond maxFiles. It returns how many files were removed.
func (j *Janitor) Sweep(now time.Time) (int, error) {
	stale, err := j.store.RemoveStaleTemps(now.Add(-staleTempAge))
	if err != nil {
		j.logger.Warn().Err(err).Msg("Failed to remove stale partial writes")
	}

	artifacts, err := j.store.List()
	if err != nil {
		return 0, err
	}

	var kept []Artifact
	expired := 0
	for _, a := range artifacts {
		if j.ttl > 0 && now.Sub(a.CreatedAt) > j.ttl {
			if err := j.store.Remove(a.Name); err != nil {
				j.logger.Warn().Err(err).Str("artifact", a.Name).Msg("Failed to remove expired artifact")
				kept = append(kept, a)
				continue
			}
			expired++
			continue
		}
		kept = append(kept, a)
	}

	overflow := 0
	if j.maxFiles > 0 && len(kept) > j.maxFiles {
		sort.Slice(kept, func(a, b int) bool {
			return kept[a].CreatedAt.Before(kept[b].CreatedAt)
		})
		for _, a := range kept[:len(kept)-j.maxFiles] {
			if err := j.store.Remove(a.Name); err != nil {
				j.logger.Warn().Err(err).Str("artifact", a.Name).Msg("Failed to remove artifact over limit")
				continue
			}
			overflow++
		}
	}

	observability.RecordArtifactsSwept("stale_temp", stale)
	observability.RecordArtifactsSwept("expired", expired)
	observability.RecordArtifactsSwept("overflow", overflow)

	removed := stale + expired + overflow
	if removed > 0 {
		j.logger.Info().
			Int("stale_temp", stale).
			Int("expired", expired).
			Int("overflow", overflow).
			Msg("Swept reply artifacts")
	}

	return removed, nil
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if _, err := j.Sweep(time.Now()); err != nil {
		j.logger.Error().Err(err).Msg("Artifact sweep failed")
	}

	if j.interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := j.Sweep(now); err != nil {
				j.logger.Error().Err(err).Msg("Artifact sweep failed")
			}
		}
	}
}
