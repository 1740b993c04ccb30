/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// globMetaChars may not appear in key segments matched by Store.Keys patterns.
const globMetaChars = "*?[]\\"

// Names of the built-in policies.
const (
	PolicyAuth    = "auth"
	PolicyAPI     = "api"
	PolicyUpload  = "upload"
	PolicyDefault = "default"
)

// Policy is a named sliding-window limit: at most MaxRequests admissions per Window for an identifier.
type Policy struct {
	Name        string
	Window      time.Duration
	MaxRequests int
	// Namespace is a part of the store key. Policies sharing a namespace share counters.
	// Name is used if empty. It must not contain ':' or glob metacharacters.
	Namespace string
}

// DefaultPolicies returns the built-in policy set.
func DefaultPolicies() []Policy {
	return []Policy{
		{Name: PolicyAuth, Window: 15 * time.Minute, MaxRequests: 5},
		{Name: PolicyAPI, Window: time.Minute, MaxRequests: 100},
		{Name: PolicyUpload, Window: time.Minute, MaxRequests: 10},
		{Name: PolicyDefault, Window: time.Minute, MaxRequests: 60},
	}
}

func (p Policy) namespace() string {
	if p.Namespace != "" {
		return p.Namespace
	}
	return p.Name
}

func (p Policy) validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy name must not be empty")
	}
	if p.Window <= 0 {
		return fmt.Errorf("policy %q: window must be positive, got %s", p.Name, p.Window)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("policy %q: max requests must be positive, got %d", p.Name, p.MaxRequests)
	}
	// Cleanup finds the keys of a namespace by the "<prefix>:<namespace>:*" pattern,
	// so the namespace has to be a single literal key segment.
	if ns := p.namespace(); strings.ContainsAny(ns, ":"+globMetaChars) {
		return fmt.Errorf("policy %q: namespace %q must not contain ':' or any of %q", p.Name, ns, globMetaChars)
	}
	return nil
}

// Decision is the outcome of a single rate limit check.
type Decision struct {
	Policy    string
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is the moment when the oldest request in the window stops counting.
	ResetAt time.Time
	// RetryAfter is how long a rejected caller should wait, zero for admitted requests.
	RetryAfter time.Duration
	// Degraded is set when the store could not be consulted and the decision was made without it.
	Degraded bool
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds, at least 1 for rejected requests.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	return max(1, int(math.Ceil(d.RetryAfter.Seconds())))
}
