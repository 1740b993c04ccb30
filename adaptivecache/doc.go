/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package adaptivecache provides a process-local key-value cache with TTL expiration,
// LRU eviction, hit/miss accounting, usage analytics and a heuristic SQL query analyzer.
//
// All operations are safe for concurrent use. Lookups never fail for missing keys,
// and GetOrCompute guarantees that concurrent misses for the same key run the compute
// function only once.
package adaptivecache
