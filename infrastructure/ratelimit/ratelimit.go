// Package ratelimit provides optional client-side throttling of server
// calls, so high-volume rotation jobs don't trip server-side limits.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Config bounds the outbound request rate.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig allows a comfortable interactive rate.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

// Limiter wraps a token bucket. The zero-value pointer (nil) means
// unlimited; all methods are nil-safe.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter from cfg, applying defaults for non-positive values.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// Wait blocks until a request slot is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed immediately.
func (l *Limiter) Allow() bool {
	if l == nil || l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}
