/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type StoreTestSuite struct {
	suite.Suite
	newStore func(t *testing.T, now func() time.Time) Store
	clock    *fakeClock
	store    Store
}

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &StoreTestSuite{newStore: func(t *testing.T, now func() time.Time) Store {
		return NewMemoryStore(MemoryStoreOpts{Now: now})
	}})
}

func TestSQLStore(t *testing.T) {
	suite.Run(t, &StoreTestSuite{newStore: func(t *testing.T, now func() time.Time) Store {
		store, err := NewSQLStore(context.Background(), filepath.Join(t.TempDir(), "ratelimit.db"), SQLStoreOpts{Now: now})
		if err != nil {
			t.Fatalf("open sqlite store: %v", err)
		}
		return store
	}})
}

func (s *StoreTestSuite) SetupTest() {
	s.clock = newFakeClock()
	s.store = s.newStore(s.T(), s.clock.Now)
}

func (s *StoreTestSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *StoreTestSuite) add(key string, markers ...Marker) {
	for _, m := range markers {
		s.Require().NoError(s.store.Add(context.Background(), key, m))
	}
}

func (s *StoreTestSuite) rangeAll(key string) []Marker {
	markers, err := s.store.RangeByScore(context.Background(), key, math.MinInt64, math.MaxInt64)
	s.Require().NoError(err)
	return markers
}

func (s *StoreTestSuite) TestRangeByScoreIsOrdered() {
	s.add("k", Marker{"c", 30}, Marker{"a", 10}, Marker{"b", 20}, Marker{"a2", 10})

	s.Require().Equal([]Marker{{"a", 10}, {"a2", 10}, {"b", 20}, {"c", 30}}, s.rangeAll("k"))

	markers, err := s.store.RangeByScore(context.Background(), "k", 11, 30)
	s.Require().NoError(err)
	s.Require().Equal([]Marker{{"b", 20}, {"c", 30}}, markers)

	markers, err = s.store.RangeByScore(context.Background(), "missing", math.MinInt64, math.MaxInt64)
	s.Require().NoError(err)
	s.Require().Empty(markers)
}

func (s *StoreTestSuite) TestAddSameMemberUpdatesScore() {
	s.add("k", Marker{"a", 10}, Marker{"b", 20}, Marker{"a", 30})
	s.Require().Equal([]Marker{{"b", 20}, {"a", 30}}, s.rangeAll("k"))
}

func (s *StoreTestSuite) TestRemoveRangeByScore() {
	s.add("k", Marker{"a", 10}, Marker{"b", 20}, Marker{"c", 30})

	removed, err := s.store.RemoveRangeByScore(context.Background(), "k", math.MinInt64, 20)
	s.Require().NoError(err)
	s.Require().EqualValues(2, removed)
	s.Require().Equal([]Marker{{"c", 30}}, s.rangeAll("k"))

	removed, err = s.store.RemoveRangeByScore(context.Background(), "k", math.MinInt64, math.MaxInt64)
	s.Require().NoError(err)
	s.Require().EqualValues(1, removed)

	keys, err := s.store.Keys(context.Background(), "*")
	s.Require().NoError(err)
	s.Require().Empty(keys, "emptied set should be removed")

	removed, err = s.store.RemoveRangeByScore(context.Background(), "missing", math.MinInt64, math.MaxInt64)
	s.Require().NoError(err)
	s.Require().Zero(removed)
}

func (s *StoreTestSuite) TestExpire() {
	s.add("k", Marker{"a", 10})
	s.Require().NoError(s.store.Expire(context.Background(), "k", time.Minute))

	s.clock.Advance(time.Minute - time.Millisecond)
	s.Require().Len(s.rangeAll("k"), 1)

	s.clock.Advance(time.Millisecond)
	s.Require().Empty(s.rangeAll("k"))

	keys, err := s.store.Keys(context.Background(), "*")
	s.Require().NoError(err)
	s.Require().Empty(keys)

	// An expired key starts from scratch.
	s.add("k", Marker{"b", 20})
	s.Require().Equal([]Marker{{"b", 20}}, s.rangeAll("k"))
}

func (s *StoreTestSuite) TestExpireIsRefreshed() {
	s.add("k", Marker{"a", 10})
	s.Require().NoError(s.store.Expire(context.Background(), "k", time.Minute))
	s.clock.Advance(30 * time.Second)
	s.Require().NoError(s.store.Expire(context.Background(), "k", time.Minute))
	s.clock.Advance(45 * time.Second)
	s.Require().Len(s.rangeAll("k"), 1)
}

func (s *StoreTestSuite) TestExpireMissingKey() {
	s.Require().NoError(s.store.Expire(context.Background(), "missing", time.Minute))
	keys, err := s.store.Keys(context.Background(), "*")
	s.Require().NoError(err)
	s.Require().Empty(keys)
}

func (s *StoreTestSuite) TestDelete() {
	s.add("k", Marker{"a", 10})
	s.Require().NoError(s.store.Delete(context.Background(), "k"))
	s.Require().Empty(s.rangeAll("k"))
	s.Require().NoError(s.store.Delete(context.Background(), "missing"))
}

func (s *StoreTestSuite) TestKeys() {
	for _, key := range []string{"ratelimit:api:user:2", "ratelimit:api:user:1", "ratelimit:auth:ip:10.0.0.1", "other"} {
		s.add(key, Marker{"a", 10})
	}

	keys, err := s.store.Keys(context.Background(), "ratelimit:api:*")
	s.Require().NoError(err)
	s.Require().Equal([]string{"ratelimit:api:user:1", "ratelimit:api:user:2"}, keys)

	keys, err = s.store.Keys(context.Background(), "*")
	s.Require().NoError(err)
	s.Require().Len(keys, 4)

	keys, err = s.store.Keys(context.Background(), "ratelimit:upload:*")
	s.Require().NoError(err)
	s.Require().Empty(keys)
}

func (s *StoreTestSuite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.store.Add(ctx, "k", Marker{"a", 10})
	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrStoreUnavailable))

	_, err = s.store.RangeByScore(ctx, "k", math.MinInt64, math.MaxInt64)
	s.Require().ErrorIs(err, ErrStoreUnavailable)
}

func TestNewStore(t *testing.T) {
	clock := newFakeClock()

	t.Run("memory", func(t *testing.T) {
		store, err := NewStore(context.Background(), StoreConfig{Type: StoreTypeMemory}, clock.Now)
		require.NoError(t, err)
		require.IsType(t, &MemoryStore{}, store)
		require.NoError(t, store.Close())
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := StoreConfig{Type: StoreTypeSQLite, SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "ratelimit.db")}}
		store, err := NewStore(context.Background(), cfg, clock.Now)
		require.NoError(t, err)
		require.IsType(t, &SQLStore{}, store)
		require.NoError(t, store.Add(context.Background(), "k", Marker{"a", 10}))
		require.NoError(t, store.Close())
	})

	t.Run("redis", func(t *testing.T) {
		cfg := StoreConfig{Type: StoreTypeRedis, Redis: RedisConfig{Addr: "127.0.0.1:1"}}
		store, err := NewStore(context.Background(), cfg, clock.Now)
		require.NoError(t, err)
		require.IsType(t, &RedisStore{}, store)
		require.NoError(t, store.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewStore(context.Background(), StoreConfig{Type: "etcd"}, clock.Now)
		require.EqualError(t, err, `unknown store type "etcd"`)
	})
}
