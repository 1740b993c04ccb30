/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/acronis/go-reqguard/log"
	"github.com/acronis/go-reqguard/service"
)

// DefaultCleanupInterval is the default interval of the periodic cleanup.
const DefaultCleanupInterval = 5 * time.Minute

// CleanupResult summarizes a single cleanup pass.
type CleanupResult struct {
	// Scanned is the number of visited identifier keys.
	Scanned int
	// Pruned is the number of removed markers that fell out of their window.
	Pruned int64
	// Deleted is the number of keys removed because no markers were left.
	Deleted int
}

// Cleanup prunes markers older than the policy window for all identifiers of every configured
// namespace and deletes the keys left empty. Policies sharing a namespace are pruned by the
// longest window among them.
//
// A failure for one key does not stop the pass. All failures are returned joined.
func (l *Limiter) Cleanup(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult
	var errs []error

	nowMs := l.now().UnixMilli()
	for _, ns := range l.namespaceWindows() {
		pattern := l.keyPrefix + ":" + ns.name + ":*"
		var keys []string
		if err := l.callStore(ctx, opKeys, func(ctx context.Context) (err error) {
			keys, err = l.store.Keys(ctx, pattern)
			return err
		}); err != nil {
			errs = append(errs, err)
			continue
		}

		windowStart := nowMs - ns.window.Milliseconds()
		for _, key := range keys {
			result.Scanned++
			deleted, pruned, err := l.cleanupKey(ctx, key, windowStart)
			result.Pruned += pruned
			if deleted {
				result.Deleted++
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	fields := []log.Field{
		log.Int("scanned", result.Scanned), log.Int64("pruned", result.Pruned), log.Int("deleted", result.Deleted),
	}
	if len(errs) != 0 {
		err := errors.Join(errs...)
		l.logger.Warn("rate limit cleanup finished with errors", append(fields, log.Error(err))...)
		return result, err
	}
	l.logger.Info("rate limit cleanup finished", fields...)
	return result, nil
}

func (l *Limiter) cleanupKey(ctx context.Context, key string, windowStart int64) (deleted bool, pruned int64, err error) {
	if err = l.callStore(ctx, opPrune, func(ctx context.Context) (err error) {
		pruned, err = l.store.RemoveRangeByScore(ctx, key, math.MinInt64, windowStart)
		return err
	}); err != nil {
		return false, 0, err
	}

	var left []Marker
	if err = l.callStore(ctx, opRange, func(ctx context.Context) (err error) {
		left, err = l.store.RangeByScore(ctx, key, math.MinInt64, math.MaxInt64)
		return err
	}); err != nil {
		return false, pruned, err
	}
	if len(left) != 0 {
		return false, pruned, nil
	}

	if err = l.callStore(ctx, opDelete, func(ctx context.Context) error {
		return l.store.Delete(ctx, key)
	}); err != nil {
		return false, pruned, err
	}
	return true, pruned, nil
}

type namespaceWindow struct {
	name   string
	window time.Duration
}

func (l *Limiter) namespaceWindows() []namespaceWindow {
	var result []namespaceWindow
	index := make(map[string]int, len(l.policyOrder))
	for _, name := range l.policyOrder {
		p := l.policies[name]
		ns := p.namespace()
		if i, ok := index[ns]; ok {
			result[i].window = max(result[i].window, p.Window)
			continue
		}
		index[ns] = len(result)
		result = append(result, namespaceWindow{name: ns, window: p.Window})
	}
	return result
}

// NewCleanupWorker creates a worker that runs Limiter.Cleanup every interval.
// Cleanup errors are logged by the worker and do not stop it.
func NewCleanupWorker(l *Limiter, interval time.Duration, logger log.FieldLogger) *service.PeriodicWorker {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	worker := service.WorkerFunc(func(ctx context.Context) error {
		_, err := l.Cleanup(ctx)
		return err
	})
	return service.NewPeriodicWorkerWithOpts(worker, interval, logger, service.PeriodicWorkerOpts{Name: "rate_limit_cleanup", InitialDelay: interval})
}
