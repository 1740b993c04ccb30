/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqguard/config"
	"github.com/acronis/go-reqguard/log"
	"github.com/acronis/go-reqguard/log/logtest"
	"github.com/acronis/go-reqguard/retry"
)

type replyError string

func (e replyError) Error() string { return string(e) }

func (replyError) RedisError() {}

var _ redis.Error = replyError("")

func TestClassifyRedisErr(t *testing.T) {
	require.NoError(t, classifyRedisErr(opAdd, nil))

	err := classifyRedisErr(opAdd, fmt.Errorf("zadd: %w", replyError("WRONGTYPE Operation against a key holding the wrong kind of value")))
	require.ErrorIs(t, err, ErrStoreProtocol)
	require.Equal(t, "protocol", storeErrorKindName(err))

	err = classifyRedisErr(opRange, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"))
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Equal(t, "unavailable", storeErrorKindName(err))

	err = classifyRedisErr(opRange, context.DeadlineExceeded)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Equal(t, "timeout", storeErrorKindName(err))

	require.ErrorIs(t, classifyRedisErr(opRange, redis.Nil), ErrStoreUnavailable)
}

func TestFormatRedisScore(t *testing.T) {
	require.Equal(t, "-inf", formatRedisScore(math.MinInt64))
	require.Equal(t, "+inf", formatRedisScore(math.MaxInt64))
	require.Equal(t, "1710410400000", formatRedisScore(1710410400000))
}

func newUnreachableRedisStore() *RedisStore {
	return NewRedisStore(NewRedisClient(RedisConfig{
		Addr:         "127.0.0.1:1",
		DialTimeout:  config.TimeDuration(100 * time.Millisecond),
		ReadTimeout:  config.TimeDuration(100 * time.Millisecond),
		WriteTimeout: config.TimeDuration(100 * time.Millisecond),
	}))
}

func TestRedisStore_Unreachable(t *testing.T) {
	store := newUnreachableRedisStore()
	defer func() { require.NoError(t, store.Close()) }()

	_, err := store.RangeByScore(context.Background(), "k", math.MinInt64, math.MaxInt64)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, opRange, storeErr.Op)

	logRecorder := logtest.NewRecorder()
	l := newTestLimiter(t, store, Opts{StoreTimeout: time.Second, Logger: logRecorder})
	d, err := l.CheckRateLimit(context.Background(), "user:1", PolicyAuth)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.True(t, d.Degraded)
	require.Equal(t, 4, d.Remaining)
	_, ok := logRecorder.FindEntry("rate limit store failed, requests are admitted without the shared limit")
	require.True(t, ok)
}

func TestRedisStore_PingWithRetry(t *testing.T) {
	store := newUnreachableRedisStore()
	defer func() { require.NoError(t, store.Close()) }()

	// The dial is either refused or times out depending on the host, both are retried.
	logRecorder := logtest.NewRecorder()
	err := store.PingWithRetry(context.Background(), retry.NewConstantBackoffPolicy(time.Millisecond, 2), logRecorder)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.ErrorContains(t, err, "ping redis")

	warnings := logRecorder.FindAllEntriesByFilter(func(e logtest.RecordedEntry) bool {
		return e.Level == log.LevelWarn && e.Text == "redis is not available, retrying"
	})
	require.Len(t, warnings, 2)
}
