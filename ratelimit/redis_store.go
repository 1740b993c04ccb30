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
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acronis/go-reqguard/log"
	"github.com/acronis/go-reqguard/retry"
)

const redisScanCount = 100

// RedisStore is a Store backed by Redis sorted sets.
type RedisStore struct {
	client redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new RedisStore using the client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient creates a Redis client from the configuration.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  time.Duration(cfg.DialTimeout),
		ReadTimeout:  time.Duration(cfg.ReadTimeout),
		WriteTimeout: time.Duration(cfg.WriteTimeout),
	})
}

// classifyRedisErr wraps a client error into StoreError.
// Error replies from the server are protocol errors, everything else means the store is unavailable.
func classifyRedisErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) && !errors.Is(err, redis.Nil) {
		return newStoreError(op, ErrStoreProtocol, err)
	}
	return newStoreError(op, ErrStoreUnavailable, err)
}

func formatRedisScore(score int64) string {
	switch score {
	case math.MinInt64:
		return "-inf"
	case math.MaxInt64:
		return "+inf"
	}
	return strconv.FormatInt(score, 10)
}

// Add inserts the marker into the sorted set (ZADD).
func (s *RedisStore) Add(ctx context.Context, key string, marker Marker) error {
	err := s.client.ZAdd(ctx, key, redis.Z{Score: float64(marker.Score), Member: marker.Member}).Err()
	return classifyRedisErr(opAdd, err)
}

// RangeByScore returns markers with min <= score <= max (ZRANGEBYSCORE WITHSCORES).
func (s *RedisStore) RangeByScore(ctx context.Context, key string, min, max int64) ([]Marker, error) {
	zs, err := s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: formatRedisScore(min),
		Max: formatRedisScore(max),
	}).Result()
	if err != nil {
		return nil, classifyRedisErr(opRange, err)
	}
	markers := make([]Marker, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			return nil, newStoreError(opRange, ErrStoreProtocol, fmt.Errorf("unexpected member type %T", z.Member))
		}
		if math.IsNaN(z.Score) || math.IsInf(z.Score, 0) {
			return nil, newStoreError(opRange, ErrStoreProtocol, fmt.Errorf("invalid score %v of member %q", z.Score, member))
		}
		markers = append(markers, Marker{Member: member, Score: int64(z.Score)})
	}
	return markers, nil
}

// RemoveRangeByScore removes markers with min <= score <= max (ZREMRANGEBYSCORE).
func (s *RedisStore) RemoveRangeByScore(ctx context.Context, key string, min, max int64) (int64, error) {
	n, err := s.client.ZRemRangeByScore(ctx, key, formatRedisScore(min), formatRedisScore(max)).Result()
	if err != nil {
		return 0, classifyRedisErr(opPrune, err)
	}
	return n, nil
}

// Expire sets the time to live of the key (PEXPIRE).
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return classifyRedisErr(opExpire, s.client.PExpire(ctx, key, ttl).Err())
}

// Delete removes the key (DEL).
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return classifyRedisErr(opDelete, s.client.Del(ctx, key).Err())
}

// Keys returns keys matching the glob pattern. SCAN is used so the server is not blocked.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, redisScanCount).Result()
		if err != nil {
			return nil, classifyRedisErr(opKeys, err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the connection to the server.
func (s *RedisStore) Ping(ctx context.Context) error {
	return classifyRedisErr("ping", s.client.Ping(ctx).Err())
}

// PingWithRetry pings the server until it answers, the retry policy gives up or ctx is done.
// Dial and read timeouts are retried. Every failed attempt is logged at the warning level.
func (s *RedisStore) PingWithRetry(ctx context.Context, policy retry.Policy, logger log.FieldLogger) error {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	notify := retry.NewLoggingNotify(logger, "redis is not available, retrying")
	if err := retry.DoWithRetry(ctx, policy, nil, notify, s.Ping); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
