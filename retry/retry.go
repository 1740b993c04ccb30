/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry repeats failing operations (store pings, reconnects) with backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-reqguard/log"
)

// IsRetryable reports whether err is worth another attempt.
type IsRetryable func(error) bool

// RetryableFunc is a single attempt of the operation.
type RetryableFunc func(ctx context.Context) error

// Policy creates a fresh backoff for every DoWithRetry call.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// DoWithRetry calls fn until it succeeds, the policy gives up, ctx is done or fn returns an error
// rejected by isRetryable. A nil isRetryable retries every error, a nil notify disables notifications.
//
// Only ctx decides whether a deadline is final: an error that merely wraps context.DeadlineExceeded
// (a dial or read timeout, for example) is retried while ctx is alive.
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	b := backoff.WithContext(p.NewBackOff(), ctx)
	return backoff.RetryNotify(func() error {
		err := fn(b.Context())
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(err)
		case isRetryable != nil && !isRetryable(err):
			return backoff.Permanent(err)
		}
		return err
	}, b, notify)
}

// NewLoggingNotify logs every failed attempt with the delay before the next one.
func NewLoggingNotify(logger log.FieldLogger, msg string) backoff.Notify {
	return func(err error, delay time.Duration) {
		logger.Warn(msg, log.Error(err), log.Duration("retry_in", delay))
	}
}

// limitAttempts caps b with maxRetries (0 means unlimited) and resets it.
func limitAttempts(b backoff.BackOff, maxRetries int) backoff.BackOff {
	if maxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(maxRetries))
	}
	b.Reset()
	return b
}

// ExponentialBackoffPolicy grows the delay 1.5 times after every attempt, with jitter.
type ExponentialBackoffPolicy struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	maxRetries      int
}

func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetryAttempts int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{initialInterval: initialInterval, maxRetries: maxRetryAttempts}
}

// WithMaxInterval caps the delay between attempts.
func (p ExponentialBackoffPolicy) WithMaxInterval(maxInterval time.Duration) ExponentialBackoffPolicy {
	p.maxInterval = maxInterval
	return p
}

func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	if p.maxInterval > 0 {
		eb.MaxInterval = p.maxInterval
	}
	eb.MaxElapsedTime = 0
	return limitAttempts(eb, p.maxRetries)
}

// ConstantBackoffPolicy waits the same interval between attempts.
type ConstantBackoffPolicy struct {
	interval   time.Duration
	maxRetries int
}

func NewConstantBackoffPolicy(interval time.Duration, maxRetryAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval: interval, maxRetries: maxRetryAttempts}
}

func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return limitAttempts(backoff.NewConstantBackOff(p.interval), p.maxRetries)
}
