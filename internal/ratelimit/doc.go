/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides in-process rate limiters keyed by an arbitrary string.
//
// The limiters serve as a local admission counter when the shared store of the
// distributed limiter is unavailable. Per-key limiter state is kept in an
// adaptive cache bounded by the maximum number of keys, so the least recently
// used keys are forgotten first.
//
// Supported algorithms:
//   - sliding window (github.com/RussellLuo/slidingwindow)
//   - leaky bucket, GCRA variant (github.com/throttled/throttled/v2)
//   - token bucket (golang.org/x/time/rate)
package ratelimit
