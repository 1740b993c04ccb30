/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package adaptivecache

import (
	"sort"
	"sync"
	"time"
)

// Statistics is a point-in-time snapshot of the cache usage.
type Statistics struct {
	Entries     int   `json:"entries"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	MemoryBytes int64 `json:"memoryBytes"`
	// HitRate is hits/(hits+misses), 0 when there were no lookups.
	HitRate         float64       `json:"hitRate"`
	AvgResponseTime time.Duration `json:"avgResponseTime"`
}

func hitRate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// HourlyHitRate holds lookup counters for a single hour.
type HourlyHitRate struct {
	Hour    time.Time `json:"hour"`
	Hits    int64     `json:"hits"`
	Misses  int64     `json:"misses"`
	HitRate float64   `json:"hitRate"`
}

const hourlySeriesLength = 24

// hourlySeries is a ring of per-hour lookup counters covering the last day.
type hourlySeries struct {
	mu      sync.Mutex
	buckets [hourlySeriesLength]HourlyHitRate
}

func hourSlot(hour time.Time) int {
	slot := int(hour.Unix()/int64(time.Hour/time.Second)) % hourlySeriesLength
	if slot < 0 {
		slot += hourlySeriesLength
	}
	return slot
}

func (s *hourlySeries) add(now time.Time, hit bool) {
	hour := now.UTC().Truncate(time.Hour)
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &s.buckets[hourSlot(hour)]
	if !b.Hour.Equal(hour) {
		*b = HourlyHitRate{Hour: hour}
	}
	if hit {
		b.Hits++
	} else {
		b.Misses++
	}
}

// snapshot returns the buckets of the last 24 hours (including the current one) in chronological order.
// Hours without lookups are omitted.
func (s *hourlySeries) snapshot(now time.Time) []HourlyHitRate {
	current := now.UTC().Truncate(time.Hour)
	oldest := current.Add(-(hourlySeriesLength - 1) * time.Hour)

	s.mu.Lock()
	result := make([]HourlyHitRate, 0, hourlySeriesLength)
	for _, b := range s.buckets {
		if b.Hour.IsZero() || b.Hour.Before(oldest) || b.Hour.After(current) {
			continue
		}
		b.HitRate = hitRate(b.Hits, b.Misses)
		result = append(result, b)
	}
	s.mu.Unlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Hour.Before(result[j].Hour) })
	return result
}
