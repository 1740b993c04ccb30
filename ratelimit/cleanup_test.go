/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqguard/log"
	"github.com/acronis/go-reqguard/log/logtest"
)

func TestLimiter_Cleanup(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(MemoryStoreOpts{Now: clock.Now})
	logRecorder := logtest.NewRecorder()
	l := newTestLimiter(t, store, Opts{
		Policies: []Policy{
			{Name: "login", Window: 10 * time.Minute, MaxRequests: 10, Namespace: "auth"},
			{Name: "refresh", Window: time.Minute, MaxRequests: 10, Namespace: "auth"},
			{Name: "api", Window: time.Minute, MaxRequests: 10},
		},
		Logger: logRecorder,
		Now:    clock.Now,
	})
	ctx := context.Background()
	check := func(id, policy string) {
		_, err := l.CheckRateLimit(ctx, id, policy)
		require.NoError(t, err)
	}
	// Markers are written without expiration so that only the cleanup can remove them.
	nowMs := clock.Now().UnixMilli()
	require.NoError(t, store.Add(ctx, "ratelimit:api:user:stale", Marker{"old", nowMs - 2*time.Minute.Milliseconds()}))
	require.NoError(t, store.Add(ctx, "other:api:user:1", Marker{"old", 0}))

	check("user:1", "api")
	check("user:1", "login")
	clock.Advance(30 * time.Second)
	check("user:1", "api")
	check("user:2", "api")
	clock.Advance(45 * time.Second)

	result, err := l.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, CleanupResult{Scanned: 4, Pruned: 2, Deleted: 1}, result)

	keys, err := store.Keys(ctx, "*")
	require.NoError(t, err)
	require.Equal(t, []string{"other:api:user:1", "ratelimit:api:user:1", "ratelimit:api:user:2", "ratelimit:auth:user:1"}, keys)

	markers, err := store.RangeByScore(ctx, "ratelimit:api:user:1", math.MinInt64, math.MaxInt64)
	require.NoError(t, err)
	require.Len(t, markers, 1)

	entry, ok := logRecorder.FindEntry("rate limit cleanup finished")
	require.True(t, ok)
	require.Equal(t, log.LevelInfo, entry.Level)
	deleted, ok := entry.FindField("deleted")
	require.True(t, ok)
	require.EqualValues(t, 1, deleted.Int)
}

func TestLimiter_Cleanup_NamespacesSharingPrefix(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(MemoryStoreOpts{Now: clock.Now})
	l := newTestLimiter(t, store, Opts{
		Policies: []Policy{
			{Name: "reports", Window: time.Hour, MaxRequests: 5, Namespace: "api-v2"},
			{Name: "search", Window: time.Second, MaxRequests: 5, Namespace: "api"},
		},
		Now: clock.Now,
	})
	ctx := context.Background()

	_, err := l.CheckRateLimit(ctx, "user:1", "reports")
	require.NoError(t, err)
	clock.Advance(10 * time.Second)

	result, err := l.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, CleanupResult{Scanned: 1}, result)

	decision, err := l.CheckRateLimit(ctx, "user:1", "reports")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, 3, decision.Remaining)
}

func TestNew_NamespaceMustBeSingleKeySegment(t *testing.T) {
	store := NewMemoryStore(MemoryStoreOpts{})
	for _, ns := range []string{"api:v2", "api*", "api?", "api[12]", `api\v2`} {
		t.Run(ns, func(t *testing.T) {
			_, err := New(store, Opts{Policies: []Policy{{Name: "p", Window: time.Second, MaxRequests: 1, Namespace: ns}}})
			require.ErrorContains(t, err, "namespace")
		})
	}
	_, err := New(store, Opts{Policies: []Policy{{Name: "api:v2", Window: time.Second, MaxRequests: 1}}})
	require.ErrorContains(t, err, `namespace "api:v2"`)

	_, err = New(store, Opts{KeyPrefix: "rl*"})
	require.ErrorContains(t, err, "key prefix")
}

func TestLimiter_Cleanup_StoreFailure(t *testing.T) {
	store := newFlakyStore(nil)
	logRecorder := logtest.NewRecorder()
	l := newTestLimiter(t, store, Opts{Logger: logRecorder})
	store.failing.Store(true)

	result, err := l.Cleanup(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Equal(t, CleanupResult{}, result)

	entry, ok := logRecorder.FindEntry("rate limit cleanup finished with errors")
	require.True(t, ok)
	require.Equal(t, log.LevelWarn, entry.Level)
}

func TestNewCleanupWorker(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(MemoryStoreOpts{Now: clock.Now})
	l := newTestLimiter(t, store, Opts{
		Policies: []Policy{{Name: "api", Window: time.Minute, MaxRequests: 10}},
		Now:      clock.Now,
	})
	require.NoError(t, store.Add(context.Background(), "ratelimit:api:user:1", Marker{"old", 0}))

	worker := NewCleanupWorker(l, 10*time.Millisecond, log.NewDisabledLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		keys, err := store.Keys(context.Background(), "*")
		return err == nil && len(keys) == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop")
	}
}
