// Package cleanup periodically prunes stale per-session persistence
// rows: view states and comments for sessions nobody has touched in
// weeks. The kv store is written on every eviction and never read for
// dead sessions, so without a sweeper it grows without bound.
package cleanup

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Config holds configuration for the persistence sweeper.
type Config struct {
	MaxAge        time.Duration // how long unwritten session rows live
	CheckInterval time.Duration // time between sweeps
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		MaxAge:        30 * 24 * time.Hour,
		CheckInterval: time.Hour,
	}
}

// Pruner is the slice of the persistence store the cleaner needs.
type Pruner interface {
	PruneSessionData(cutoff time.Time) (int64, error)
}

// Cleaner sweeps stale session rows on an interval.
type Cleaner struct {
	store  Pruner
	config Config
	logger zerolog.Logger
}

// New creates a cleaner. Zero config fields fall back to defaults.
func New(store Pruner, cfg Config, logger zerolog.Logger) *Cleaner {
	def := DefaultConfig()
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	return &Cleaner{
		store:  store,
		config: cfg,
		logger: logger.With().Str("component", "cleanup").Logger(),
	}
}

// Run sweeps once immediately and then on every interval tick until
// ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	c.sweep(time.Now())

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.sweep(now)
		}
	}
}

// SweepOnce runs a single sweep anchored at now.
func (c *Cleaner) SweepOnce(now time.Time) (int64, error) {
	return c.store.PruneSessionData(now.Add(-c.config.MaxAge))
}

func (c *Cleaner) sweep(now time.Time) {
	n, err := c.SweepOnce(now)
	if err != nil {
		c.logger.Warn().Err(err).Msg("persistence sweep failed")
		return
	}
	if n > 0 {
		c.logger.Info().Int64("rows", n).Msg("pruned stale session data")
	}
}
