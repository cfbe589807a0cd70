// Package ratelimit implements a bounded concurrency permit source plus
// a retry-with-backoff helper for rate-limited operations. It generalizes
// the retry/backoff design in internal/timeline/loop.go and
// internal/timeline/retry_test.go from task-poll retries to a reusable
// caller-supplied operation.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Config tunes the permit source and the retry helper's backoff.
type Config struct {
	MaxConcurrentCalls int
	MinDelay           time.Duration
	ParallelEnabled    bool
	BackoffMultiplier  float64
	MaxRetries         int
}

// DefaultConfig returns conservative defaults: max_concurrent_calls=5,
// min_delay_ms=100, parallel_enabled=true, backoff_multiplier=2.0,
// max_retries=5.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentCalls: 5,
		MinDelay:           100 * time.Millisecond,
		ParallelEnabled:    true,
		BackoffMultiplier:  2.0,
		MaxRetries:         5,
	}
}

const maxBackoff = 60 * time.Second

// Limiter is a permit source with a configured maximum concurrency and a
// monotonic "last permit granted" timestamp enforcing a minimum spacing
// between grants.
type Limiter struct {
	sem      *semaphore.Weighted
	minDelay time.Duration

	mu       sync.Mutex
	lastGrant time.Time
}

func New(cfg Config) *Limiter {
	max := cfg.MaxConcurrentCalls
	if max <= 0 {
		max = 1
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(max)),
		minDelay: cfg.MinDelay,
	}
}

// Permit is released by calling Release, mirroring a token that releases
// a concurrency slot when the caller is done with it.
type Permit struct {
	l *Limiter
}

func (p *Permit) Release() {
	p.l.sem.Release(1)
}

// Acquire blocks until a permit is available, then sleeps out any
// remaining minimum-spacing gap since the last grant before returning.
func (l *Limiter) Acquire(ctx context.Context) (*Permit, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	l.mu.Lock()
	wait := time.Duration(0)
	if !l.lastGrant.IsZero() {
		elapsed := time.Since(l.lastGrant)
		if elapsed < l.minDelay {
			wait = l.minDelay - elapsed
		}
	}
	l.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			l.sem.Release(1)
			return nil, ctx.Err()
		}
	}

	l.mu.Lock()
	l.lastGrant = time.Now()
	l.mu.Unlock()

	return &Permit{l: l}, nil
}

// Op is the operation retried by RetryWithBackoff.
type Op func(ctx context.Context) error

// RetryWithBackoff invokes f; on failure it sleeps
// min_delay_ms * multiplier^attempt (capped at 60s), then retries up to
// max_retries times, returning the final error if all attempts fail.
func RetryWithBackoff(ctx context.Context, f Op, cfg Config) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg.MinDelay, cfg.BackoffMultiplier, attempt-1)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		lastErr = f(ctx)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("after %d retries: %w", cfg.MaxRetries, lastErr)
}

func backoffDelay(base time.Duration, multiplier float64, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * multiplier)
		if d > maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// IsRateLimitError matches case-insensitive "rate limit", "429", or
// "too many requests" to let callers classify errors.
func IsRateLimitError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "429") ||
		strings.Contains(lower, "too many requests")
}
