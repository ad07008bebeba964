package reconnect

import (
	"context"
	"sync"
	"time"

	"renamebot/pkg/logger"
)

// Config configures a Backoff
type Config struct {
	MinBackoff        time.Duration // first wait after a failure (default 1s)
	MaxBackoff        time.Duration // cap (default 1min)
	BackoffMultiplier float64       // growth per consecutive failure (default 2.0)
}

// Backoff tracks consecutive failures of a long-running loop and spaces
// retries exponentially. It never gives up; callers stop through ctx.
type Backoff struct {
	minBackoff time.Duration
	maxBackoff time.Duration
	multiplier float64

	mu                  sync.Mutex
	current             time.Duration
	consecutiveFailures int
	totalFailures       int

	log *logger.Logger
}

// NewBackoff creates a Backoff with defaults filled in
func NewBackoff(cfg Config, log *logger.Logger) *Backoff {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = time.Minute
		if cfg.MaxBackoff < cfg.MinBackoff {
			cfg.MaxBackoff = cfg.MinBackoff
		}
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 2.0
	}

	return &Backoff{
		minBackoff: cfg.MinBackoff,
		maxBackoff: cfg.MaxBackoff,
		multiplier: cfg.BackoffMultiplier,
		current:    cfg.MinBackoff,
		log:        log,
	}
}

// Failure records a failure and returns how long to wait before the next attempt
func (b *Backoff) Failure() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	wait := b.current
	b.consecutiveFailures++
	b.totalFailures++

	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.maxBackoff {
		next = b.maxBackoff
	}
	b.current = next

	return wait
}

// Success resets the backoff after a healthy iteration
func (b *Backoff) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consecutiveFailures > 0 {
		b.log.Infow("✅ Recovered, resetting backoff",
			"previous_consecutive_failures", b.consecutiveFailures,
		)
	}
	b.current = b.minBackoff
	b.consecutiveFailures = 0
}

// Wait records a failure and sleeps for the resulting backoff. It returns
// ctx.Err() when ctx ends first.
func (b *Backoff) Wait(ctx context.Context) error {
	wait := b.Failure()

	b.log.Warnw("⏳ Backing off before retry",
		"backoff", wait,
		"consecutive_failures", b.ConsecutiveFailures(),
	)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsecutiveFailures returns failures since the last Success
func (b *Backoff) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// Stats contains backoff statistics
type Stats struct {
	ConsecutiveFailures int
	TotalFailures       int
	CurrentBackoff      time.Duration
}

// GetStats returns current backoff stats
func (b *Backoff) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		ConsecutiveFailures: b.consecutiveFailures,
		TotalFailures:       b.totalFailures,
		CurrentBackoff:      b.current,
	}
}
