/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyPrefixedDataProvider(t *testing.T) {
	va := newTestViperAdapter(t)
	dp := NewKeyPrefixedDataProvider(va, "rateLimit")

	storeType, err := dp.GetStringFromSet("store.type", []string{"redis"}, true)
	require.NoError(t, err)
	require.Equal(t, "Redis", storeType)

	timeout, err := dp.GetDuration("storeTimeout")
	require.NoError(t, err)
	require.Equal(t, 150*time.Millisecond, timeout)

	enabled, err := dp.GetBool("enabled")
	require.NoError(t, err)
	require.True(t, enabled)

	addrs, err := dp.GetStringSlice("store.addrs")
	require.NoError(t, err)
	require.Len(t, addrs, 2)

	require.True(t, dp.IsSet("policies.auth"))
	var policies map[string]map[string]string
	require.NoError(t, dp.UnmarshalKey("policies", &policies))
	require.Equal(t, "5/15m", policies["auth"]["rate"])

	dp.SetDefault("keyPrefix", "ratelimit")
	dp.Set("store.type", "memory")
	keyPrefix, err := dp.GetString("keyPrefix")
	require.NoError(t, err)
	require.Equal(t, "ratelimit", keyPrefix)
	require.Equal(t, "memory", va.Get("rateLimit.store.type"))

	_, err = dp.GetInt("store.type")
	require.ErrorContains(t, err, "rateLimit.store.type: ")

	err = dp.WrapKeyErr("storeTimeout", errors.New("should be > 0"))
	require.EqualError(t, err, "rateLimit.storeTimeout: should be > 0")

	cacheDP := NewKeyPrefixedDataProvider(va, "cache")
	size, err := cacheDP.GetBytesCount("maxEntrySize")
	require.NoError(t, err)
	require.Equal(t, BytesCount(64*1024), size)
	maxEntries, err := cacheDP.GetInt("maxEntries")
	require.NoError(t, err)
	require.Equal(t, 250, maxEntries)
}

func TestKeyPrefixedDataProvider_EmptyPrefix(t *testing.T) {
	va := newTestViperAdapter(t)
	dp := NewKeyPrefixedDataProvider(va, "")

	maxEntries, err := dp.GetInt("cache.maxEntries")
	require.NoError(t, err)
	require.Equal(t, 250, maxEntries)
	require.EqualError(t, dp.WrapKeyErr("cache.maxEntries", errors.New("invalid")), "cache.maxEntries: invalid")
}
