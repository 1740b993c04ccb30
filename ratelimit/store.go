/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Marker is a single admitted request recorded in the store.
type Marker struct {
	Member string
	// Score is the admission time in Unix milliseconds.
	Score int64
}

// Store is a key space of ordered sets of markers.
//
// Implementations must be safe for concurrent use.
// Errors should be returned as *StoreError with ErrStoreUnavailable or ErrStoreProtocol kind.
type Store interface {
	// Add inserts the marker into the set. A marker with the same member is replaced.
	Add(ctx context.Context, key string, marker Marker) error

	// RangeByScore returns markers with min <= score <= max ordered by score ascending.
	RangeByScore(ctx context.Context, key string, min, max int64) ([]Marker, error)

	// RemoveRangeByScore removes markers with min <= score <= max and returns their number.
	RemoveRangeByScore(ctx context.Context, key string, min, max int64) (int64, error)

	// Expire sets the time to live of the key. The whole set is dropped when it expires.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Delete removes the key.
	Delete(ctx context.Context, key string) error

	// Keys returns existing keys matching the glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Close releases the store resources.
	Close() error
}

// NewStore creates the store of the configured type.
// The Redis store is returned without checking the connection, use RedisStore.PingWithRetry for that.
func NewStore(ctx context.Context, cfg StoreConfig, now func() time.Time) (Store, error) {
	switch cfg.Type {
	case StoreTypeRedis:
		return NewRedisStore(NewRedisClient(cfg.Redis)), nil
	case StoreTypeSQLite:
		return NewSQLStore(ctx, cfg.SQLite.Path, SQLStoreOpts{Now: now})
	case StoreTypeMemory, "":
		return NewMemoryStore(MemoryStoreOpts{Now: now}), nil
	}
	return nil, fmt.Errorf("unknown store type %q", cfg.Type)
}
