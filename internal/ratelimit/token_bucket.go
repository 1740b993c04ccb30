/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucketLimiter implements token bucket rate limiting algorithm.
// The bucket of maxBurst tokens is refilled at the configured rate.
type TokenBucketLimiter struct {
	zones *zones[*rate.Limiter]
}

// NewTokenBucketLimiter creates a new token bucket rate limiter.
func NewTokenBucketLimiter(maxRate Rate, maxBurst, maxKeys int) (*TokenBucketLimiter, error) {
	every := rate.Every(maxRate.Duration / time.Duration(maxRate.Count))
	burst := max(1, maxBurst)
	z, err := newZones(maxKeys, func() *rate.Limiter {
		return rate.NewLimiter(every, burst)
	})
	if err != nil {
		return nil, err
	}
	return &TokenBucketLimiter{zones: z}, nil
}

// Allow checks if the request should be allowed based on the rate limit.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	lim, err := l.zones.get(ctx, key)
	if err != nil {
		return false, 0, err
	}
	now := time.Now()
	reservation := lim.ReserveN(now, 1)
	if !reservation.OK() {
		return false, 0, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}
