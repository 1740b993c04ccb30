/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package adaptivecache

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdaptiveCache_Analytics(t *testing.T) {
	clock := newFakeClock()
	cache := newTestCache[string](t, Options{DefaultTTL: time.Hour, Now: clock.Now})

	for i := 0; i < 12; i++ {
		require.NoError(t, cache.Set("key:"+strconv.Itoa(i), "v"))
		for j := 0; j < i; j++ {
			_, _ = cache.Get("key:" + strconv.Itoa(i))
		}
	}
	require.NoError(t, cache.Set("medium", strings.Repeat("m", 2000)))
	require.NoError(t, cache.Set("large", strings.Repeat("l", 20000)))
	require.NoError(t, cache.SetWithTTL("expired", "x", time.Second))
	clock.Advance(2 * time.Second)

	analytics := cache.Analytics()

	require.Len(t, analytics.TopKeys, 10)
	require.Equal(t, KeyHits{Key: "key:11", Hits: 11}, analytics.TopKeys[0])
	require.Equal(t, KeyHits{Key: "key:2", Hits: 2}, analytics.TopKeys[9])

	require.Equal(t, SizeDistribution{Small: 12, Medium: 1, Large: 1}, analytics.SizeDistribution)
	require.Equal(t, int64(12*3+2002+20002), analytics.MemoryBytes)
	require.NotEmpty(t, analytics.Memory)

	require.Len(t, analytics.HourlyHitRate, 1)
	require.Equal(t, int64(66), analytics.HourlyHitRate[0].Hits)
	require.Equal(t, float64(1), analytics.HourlyHitRate[0].HitRate)
}

func TestAdaptiveCache_AnalyticsTopKeysTies(t *testing.T) {
	cache := newTestCache[int](t, Options{})
	for _, key := range []string{"c", "a", "b"} {
		require.NoError(t, cache.Set(key, 1))
	}
	require.Equal(t, []KeyHits{{"a", 0}, {"b", 0}, {"c", 0}}, cache.Analytics().TopKeys)
}

func TestHourlySeries(t *testing.T) {
	start := time.Date(2025, 3, 14, 0, 30, 0, 0, time.UTC)
	var series hourlySeries

	series.add(start, true)
	series.add(start, false)
	series.add(start.Add(time.Hour), true)
	series.add(start.Add(5*time.Hour), false)

	snapshot := series.snapshot(start.Add(5 * time.Hour))
	require.Len(t, snapshot, 3)
	require.Equal(t, start.Truncate(time.Hour), snapshot[0].Hour)
	require.Equal(t, 0.5, snapshot[0].HitRate)
	require.Equal(t, float64(1), snapshot[1].HitRate)
	require.Equal(t, float64(0), snapshot[2].HitRate)

	// A day later the same slots are reused and old hours fall out of the window.
	series.add(start.Add(24*time.Hour), true)
	snapshot = series.snapshot(start.Add(24 * time.Hour))
	require.Len(t, snapshot, 3)
	require.Equal(t, start.Add(time.Hour).Truncate(time.Hour), snapshot[0].Hour)
	require.Equal(t, start.Add(24*time.Hour).Truncate(time.Hour), snapshot[2].Hour)
	require.Equal(t, int64(1), snapshot[2].Hits)
}
