/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Rate describes the frequency of requests.
type Rate struct {
	Count    int
	Duration time.Duration
}

// Limiter interface defines the rate limiting contract.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// Alg is a rate limiting algorithm.
type Alg string

// Supported algorithms.
const (
	AlgSlidingWindow Alg = "sliding_window"
	AlgLeakyBucket   Alg = "leaky_bucket"
	AlgTokenBucket   Alg = "token_bucket"
)

// DefaultMaxKeys is the default number of keys for which the limiter state is kept.
const DefaultMaxKeys = 10000

// ParseAlg parses the algorithm name (case-insensitive).
func ParseAlg(s string) (Alg, error) {
	switch alg := Alg(strings.ToLower(s)); alg {
	case AlgSlidingWindow, AlgLeakyBucket, AlgTokenBucket:
		return alg, nil
	}
	return "", fmt.Errorf("unknown rate limiting algorithm %q", s)
}

// Opts represents options for the limiter constructed by New.
type Opts struct {
	// MaxKeys is the maximum number of keys with tracked state. DefaultMaxKeys is used if zero.
	MaxKeys int

	// MaxBurst is used by the leaky and token bucket algorithms. Rate.Count is used if zero.
	MaxBurst int
}

// New creates a limiter implementing the given algorithm.
func New(alg Alg, maxRate Rate, opts Opts) (Limiter, error) {
	if maxRate.Count <= 0 || maxRate.Duration <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %d/%s", maxRate.Count, maxRate.Duration)
	}
	if opts.MaxKeys == 0 {
		opts.MaxKeys = DefaultMaxKeys
	}
	if opts.MaxBurst == 0 {
		opts.MaxBurst = maxRate.Count
	}
	switch alg {
	case AlgSlidingWindow:
		return NewSlidingWindowLimiter(maxRate, opts.MaxKeys)
	case AlgLeakyBucket:
		// GCRA burst counts requests on top of the first one.
		return NewLeakyBucketLimiter(maxRate, opts.MaxBurst-1, opts.MaxKeys)
	case AlgTokenBucket:
		return NewTokenBucketLimiter(maxRate, opts.MaxBurst, opts.MaxKeys)
	}
	return nil, fmt.Errorf("unknown rate limiting algorithm %q", alg)
}
