/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidIdentifier is returned when an empty identifier is passed to the limiter.
var ErrInvalidIdentifier = errors.New("rate limit identifier must not be empty")

// ErrUnknownPolicy is returned when a policy with the given name is not configured.
var ErrUnknownPolicy = errors.New("unknown rate limit policy")

// ErrStoreUnavailable is a kind of store errors caused by connectivity problems or timeouts.
var ErrStoreUnavailable = errors.New("rate limit store is unavailable")

// ErrStoreProtocol is a kind of store errors caused by error replies or malformed data.
var ErrStoreProtocol = errors.New("rate limit store protocol error")

// StoreError describes a failed store operation.
// errors.Is(err, ErrStoreUnavailable) or errors.Is(err, ErrStoreProtocol) may be used to check its kind.
type StoreError struct {
	Op   string
	Kind error
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns both the kind and the cause of the error.
func (e *StoreError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindName returns a short name of the error kind used in logs and metrics.
func (e *StoreError) KindName() string {
	switch {
	case errors.Is(e.Kind, ErrStoreProtocol):
		return "protocol"
	case errors.Is(e.Err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unavailable"
	}
}

func newStoreError(op string, kind, err error) *StoreError {
	return &StoreError{Op: op, Kind: kind, Err: err}
}

// storeErrorKindName returns the kind name for any error returned by a store.
// Errors that are not StoreError are treated as unavailability.
func storeErrorKindName(err error) string {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.KindName()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unavailable"
}
