/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vasayxtx/go-glob"
)

// MemoryStore is an in-process Store. It is intended for tests and single-instance deployments.
type MemoryStore struct {
	mu   sync.Mutex
	sets map[string]*memorySet
	now  func() time.Time
}

type memorySet struct {
	markers  []Marker // ordered by score, then by member
	expireAt time.Time
}

func (s *memorySet) find(member string) int {
	for i := range s.markers {
		if s.markers[i].Member == member {
			return i
		}
	}
	return -1
}

var _ Store = (*MemoryStore)(nil)

// MemoryStoreOpts represents options for MemoryStore.
type MemoryStoreOpts struct {
	// Now returns the current time used for key expiration. time.Now is used if nil.
	Now func() time.Time
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore(opts MemoryStoreOpts) *MemoryStore {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &MemoryStore{sets: make(map[string]*memorySet), now: opts.Now}
}

// get returns a live set, dropping it if expired. Must be called under the lock.
func (s *MemoryStore) get(key string) *memorySet {
	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	if !set.expireAt.IsZero() && !s.now().Before(set.expireAt) {
		delete(s.sets, key)
		return nil
	}
	return set
}

// Add inserts the marker into the set.
func (s *MemoryStore) Add(ctx context.Context, key string, marker Marker) error {
	if err := ctx.Err(); err != nil {
		return newStoreError(opAdd, ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.get(key)
	if set == nil {
		set = &memorySet{}
		s.sets[key] = set
	}
	if i := set.find(marker.Member); i >= 0 {
		set.markers = append(set.markers[:i], set.markers[i+1:]...)
	}
	pos := sort.Search(len(set.markers), func(i int) bool {
		m := set.markers[i]
		return m.Score > marker.Score || (m.Score == marker.Score && m.Member > marker.Member)
	})
	set.markers = append(set.markers, Marker{})
	copy(set.markers[pos+1:], set.markers[pos:])
	set.markers[pos] = marker
	return nil
}

// RangeByScore returns markers with min <= score <= max ordered by score.
func (s *MemoryStore) RangeByScore(ctx context.Context, key string, min, max int64) ([]Marker, error) {
	if err := ctx.Err(); err != nil {
		return nil, newStoreError(opRange, ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.get(key)
	if set == nil {
		return nil, nil
	}
	var result []Marker
	for _, m := range set.markers {
		if m.Score > max {
			break
		}
		if m.Score >= min {
			result = append(result, m)
		}
	}
	return result, nil
}

// RemoveRangeByScore removes markers with min <= score <= max. An emptied set is removed.
func (s *MemoryStore) RemoveRangeByScore(ctx context.Context, key string, min, max int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, newStoreError(opPrune, ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.get(key)
	if set == nil {
		return 0, nil
	}
	kept := set.markers[:0]
	for _, m := range set.markers {
		if m.Score < min || m.Score > max {
			kept = append(kept, m)
		}
	}
	removed := int64(len(set.markers) - len(kept))
	set.markers = kept
	if len(set.markers) == 0 {
		delete(s.sets, key)
	}
	return removed, nil
}

// Expire sets the time to live of an existing key.
func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return newStoreError(opExpire, ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if set := s.get(key); set != nil {
		set.expireAt = s.now().Add(ttl)
	}
	return nil
}

// Delete removes the key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return newStoreError(opDelete, ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, key)
	return nil
}

// Keys returns live keys matching the glob pattern in lexicographical order.
func (s *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, newStoreError(opKeys, ErrStoreUnavailable, err)
	}
	match := glob.Compile(pattern)

	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.sets {
		if s.get(key) != nil && match(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close does nothing.
func (s *MemoryStore) Close() error {
	return nil
}
