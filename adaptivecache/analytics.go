/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package adaptivecache

import (
	"sort"

	"code.cloudfoundry.org/bytefmt"
)

// Entry size classes used by Analytics.
const (
	SmallEntryMaxBytes  = bytefmt.KILOBYTE
	MediumEntryMaxBytes = 10 * bytefmt.KILOBYTE
)

const topKeysLimit = 10

// KeyHits is a key with the number of hits since it was stored.
type KeyHits struct {
	Key  string `json:"key"`
	Hits int64  `json:"hits"`
}

// SizeDistribution is the number of live entries per size class.
type SizeDistribution struct {
	Small  int `json:"small"`
	Medium int `json:"medium"`
	Large  int `json:"large"`
}

// Analytics is a derived report about the cache content and its usage.
type Analytics struct {
	TopKeys          []KeyHits        `json:"topKeys"`
	SizeDistribution SizeDistribution `json:"sizeDistribution"`
	HourlyHitRate    []HourlyHitRate  `json:"hourlyHitRate"`
	MemoryBytes      int64            `json:"memoryBytes"`
	Memory           string           `json:"memory"`
}

// Analytics returns the top keys by hits, the size distribution of live entries
// and the hourly hit rate for the last 24 hours.
func (c *AdaptiveCache[V]) Analytics() Analytics {
	now := c.now()

	c.mu.Lock()
	keys := make([]KeyHits, 0, len(c.entries))
	var dist SizeDistribution
	var memory int64
	for _, elem := range c.entries {
		entry := elem.Value.(*cacheEntry[V])
		if entry.isExpired(now) {
			continue
		}
		keys = append(keys, KeyHits{Key: entry.key, Hits: entry.hitCount})
		memory += int64(entry.sizeBytes)
		switch {
		case entry.sizeBytes < SmallEntryMaxBytes:
			dist.Small++
		case entry.sizeBytes < MediumEntryMaxBytes:
			dist.Medium++
		default:
			dist.Large++
		}
	}
	c.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Hits != keys[j].Hits {
			return keys[i].Hits > keys[j].Hits
		}
		return keys[i].Key < keys[j].Key
	})
	if len(keys) > topKeysLimit {
		keys = keys[:topKeysLimit]
	}

	return Analytics{
		TopKeys:          keys,
		SizeDistribution: dist,
		HourlyHitRate:    c.hourly.snapshot(now),
		MemoryBytes:      memory,
		Memory:           bytefmt.ByteSize(uint64(memory)),
	}
}
