package ratelimit

import "context"

// RateLimiter bounds provider call throughput per channel.
type RateLimiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
	Wait(ctx context.Context, channel string) error
}

// NoopLimiter allows everything. Used when no shared limiter backend is
// configured.
type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (NoopLimiter) Wait(context.Context, string) error { return nil }

var _ RateLimiter = NoopLimiter{}
