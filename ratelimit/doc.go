/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides a distributed sliding-window rate limiter.
//
// Admission decisions are made against a shared store with ordered-set semantics
// (Redis, SQLite or in-memory), so several service instances enforce a common budget
// per identifier and policy. Each admitted request leaves a timestamped marker in the
// store, and a request is rejected when the number of markers within the policy window
// reaches the limit.
//
// The limiter fails open: when the store is unavailable, slow or returns malformed data,
// requests are admitted and the decision is flagged as degraded. Optionally, a local
// in-process limiter may be used to bound the traffic while the store is unavailable.
package ratelimit
