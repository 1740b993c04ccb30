/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"

	"github.com/acronis/go-reqguard/adaptivecache"
)

// zones keeps per-key limiter state, evicting the least recently used keys.
type zones[T any] struct {
	cache  *adaptivecache.AdaptiveCache[T]
	create func() T
}

func newZones[T any](maxKeys int, create func() T) (*zones[T], error) {
	if maxKeys < 0 {
		return nil, fmt.Errorf("max keys must be non-negative, got %d", maxKeys)
	}
	cache, err := adaptivecache.New[T](adaptivecache.Options{MaxEntries: maxKeys})
	if err != nil {
		return nil, fmt.Errorf("new adaptive cache for keys: %w", err)
	}
	return &zones[T]{cache: cache, create: create}, nil
}

func (z *zones[T]) get(ctx context.Context, key string) (T, error) {
	return z.cache.GetOrCompute(ctx, func() string { return key }, func(context.Context) (T, error) {
		return z.create(), nil
	}, 0)
}
