/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
	"go.uber.org/atomic"

	localratelimit "github.com/acronis/go-reqguard/internal/ratelimit"
	"github.com/acronis/go-reqguard/log"
)

// Default values of the limiter options.
const (
	DefaultKeyPrefix    = "ratelimit"
	DefaultStoreTimeout = 200 * time.Millisecond
)

// Store operation names used in logs and metrics.
const (
	opRange  = "range"
	opAdd    = "add"
	opExpire = "expire"
	opPrune  = "prune"
	opKeys   = "keys"
	opDelete = "delete"
)

// FallbackAlg is an algorithm of the local limiter used while the store is unavailable.
type FallbackAlg string

// Supported local fallback algorithms.
const (
	FallbackAlgSlidingWindow = FallbackAlg(localratelimit.AlgSlidingWindow)
	FallbackAlgLeakyBucket   = FallbackAlg(localratelimit.AlgLeakyBucket)
	FallbackAlgTokenBucket   = FallbackAlg(localratelimit.AlgTokenBucket)
)

// LocalFallbackOpts configures the local limiter used for degraded decisions.
type LocalFallbackOpts struct {
	Alg FallbackAlg
	// MaxKeys is the maximum number of identifiers tracked per policy.
	MaxKeys int
}

// Opts represents options for the Limiter.
type Opts struct {
	// KeyPrefix is the first segment of store keys. DefaultKeyPrefix is used if empty.
	KeyPrefix string

	// StoreTimeout bounds every single store call. DefaultStoreTimeout is used if zero.
	StoreTimeout time.Duration

	// Policies is the set of selectable policies. DefaultPolicies is used if empty.
	Policies []Policy

	// LocalFallback enables the local limiter for degraded decisions.
	// If nil, all requests are admitted while the store is unavailable.
	LocalFallback *LocalFallbackOpts

	// MetricsCollector is a disabled collector if nil.
	MetricsCollector MetricsCollector

	// Logger is a disabled logger if nil.
	Logger log.FieldLogger

	// Now returns the current time. time.Now is used if nil.
	Now func() time.Time
}

// Limiter is a distributed sliding-window rate limiter.
type Limiter struct {
	store        Store
	keyPrefix    string
	storeTimeout time.Duration
	policies     map[string]Policy
	policyOrder  []string
	fallbacks    map[string]localratelimit.Limiter
	metrics      MetricsCollector
	logger       log.FieldLogger
	now          func() time.Time

	degraded atomic.Bool
}

// New creates a new Limiter on top of the store.
func New(store Store, opts Opts) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if strings.ContainsAny(opts.KeyPrefix, globMetaChars) {
		return nil, fmt.Errorf("key prefix %q must not contain any of %q", opts.KeyPrefix, globMetaChars)
	}
	if opts.StoreTimeout == 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.StoreTimeout < 0 {
		return nil, fmt.Errorf("store timeout must be positive, got %s", opts.StoreTimeout)
	}
	if len(opts.Policies) == 0 {
		opts.Policies = DefaultPolicies()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetricsCollector
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Limiter{
		store:        store,
		keyPrefix:    opts.KeyPrefix,
		storeTimeout: opts.StoreTimeout,
		policies:     make(map[string]Policy, len(opts.Policies)),
		metrics:      opts.MetricsCollector,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	for _, p := range opts.Policies {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := l.policies[p.Name]; dup {
			return nil, fmt.Errorf("policy %q is defined more than once", p.Name)
		}
		l.policies[p.Name] = p
		l.policyOrder = append(l.policyOrder, p.Name)
	}

	if opts.LocalFallback != nil {
		alg, err := localratelimit.ParseAlg(string(opts.LocalFallback.Alg))
		if err != nil {
			return nil, fmt.Errorf("local fallback: %w", err)
		}
		l.fallbacks = make(map[string]localratelimit.Limiter, len(l.policies))
		for name, p := range l.policies {
			fallback, err := localratelimit.New(alg, localratelimit.Rate{Count: p.MaxRequests, Duration: p.Window},
				localratelimit.Opts{MaxKeys: opts.LocalFallback.MaxKeys})
			if err != nil {
				return nil, fmt.Errorf("local fallback for policy %q: %w", name, err)
			}
			l.fallbacks[name] = fallback
		}
	}
	return l, nil
}

// Policy returns the policy by name.
func (l *Limiter) Policy(name string) (Policy, bool) {
	p, ok := l.policies[name]
	return p, ok
}

// Policies returns all configured policies in the order they were passed.
func (l *Limiter) Policies() []Policy {
	result := make([]Policy, 0, len(l.policyOrder))
	for _, name := range l.policyOrder {
		result = append(result, l.policies[name])
	}
	return result
}

// Degraded reports whether the last store interaction failed.
func (l *Limiter) Degraded() bool {
	return l.degraded.Load()
}

// Close closes the underlying store.
func (l *Limiter) Close() error {
	return l.store.Close()
}

func (l *Limiter) makeKey(p Policy, identifier string) string {
	return l.keyPrefix + ":" + p.namespace() + ":" + identifier
}

// CheckRateLimit decides whether a request from the identifier is admitted by the named policy.
//
// Errors are returned only for an empty identifier (ErrInvalidIdentifier) or an unknown
// policy (ErrUnknownPolicy). Store failures never surface to the caller: the request is
// admitted and the decision is marked as degraded.
func (l *Limiter) CheckRateLimit(ctx context.Context, identifier, policyName string) (Decision, error) {
	if identifier == "" {
		return Decision{}, ErrInvalidIdentifier
	}
	policy, ok := l.policies[policyName]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, policyName)
	}

	key := l.makeKey(policy, identifier)
	now := l.now()
	decision, err := l.check(ctx, key, policy, now)
	if err != nil {
		return l.degradedDecision(ctx, key, policy, now, err), nil
	}
	l.markStoreHealthy()

	if decision.Allowed {
		l.metrics.IncDecision(policy.Name, OutcomeAllowed)
	} else {
		l.metrics.IncDecision(policy.Name, OutcomeRejected)
	}
	return decision, nil
}

func (l *Limiter) check(ctx context.Context, key string, policy Policy, now time.Time) (Decision, error) {
	nowMs := now.UnixMilli()
	windowMs := policy.Window.Milliseconds()
	// A marker stops counting exactly one window after its admission.
	windowStart := nowMs - windowMs

	var markers []Marker
	if err := l.callStore(ctx, opRange, func(ctx context.Context) (err error) {
		markers, err = l.store.RangeByScore(ctx, key, windowStart+1, math.MaxInt64)
		return err
	}); err != nil {
		return Decision{}, err
	}

	decision := Decision{Policy: policy.Name, Limit: policy.MaxRequests}
	count := len(markers)
	if count >= policy.MaxRequests {
		resetMs := markers[0].Score + windowMs
		decision.ResetAt = time.UnixMilli(resetMs)
		decision.RetryAfter = max(0, time.Duration(resetMs-nowMs)*time.Millisecond)
		return decision, nil
	}

	marker := Marker{Member: strconv.FormatInt(nowMs, 10) + "-" + xid.New().String(), Score: nowMs}
	if err := l.callStore(ctx, opAdd, func(ctx context.Context) error {
		return l.store.Add(ctx, key, marker)
	}); err != nil {
		return Decision{}, err
	}
	if err := l.callStore(ctx, opExpire, func(ctx context.Context) error {
		return l.store.Expire(ctx, key, policy.Window)
	}); err != nil {
		return Decision{}, err
	}
	if err := l.callStore(ctx, opPrune, func(ctx context.Context) error {
		_, err := l.store.RemoveRangeByScore(ctx, key, math.MinInt64, windowStart)
		return err
	}); err != nil {
		l.logger.Debug("failed to prune stale rate limit markers", log.String("key", key), log.Error(err))
	}

	resetBaseMs := nowMs
	if count > 0 {
		resetBaseMs = markers[0].Score
	}
	decision.Allowed = true
	decision.Remaining = policy.MaxRequests - count - 1
	decision.ResetAt = time.UnixMilli(resetBaseMs + windowMs)
	return decision, nil
}

// degradedDecision is made when the store could not be consulted.
// The request is admitted unless the local fallback limiter rejects it.
func (l *Limiter) degradedDecision(ctx context.Context, key string, policy Policy, now time.Time, storeErr error) Decision {
	if l.degraded.CompareAndSwap(false, true) {
		l.logger.Warn("rate limit store failed, requests are admitted without the shared limit",
			log.String("policy", policy.Name),
			log.String("kind", storeErrorKindName(storeErr)),
			log.Error(storeErr))
	}

	decision := Decision{
		Policy:    policy.Name,
		Allowed:   true,
		Limit:     policy.MaxRequests,
		Remaining: policy.MaxRequests - 1,
		ResetAt:   now.Add(policy.Window),
		Degraded:  true,
	}

	if fallback, ok := l.fallbacks[policy.Name]; ok {
		allow, retryAfter, err := fallback.Allow(ctx, key)
		if err != nil {
			l.logger.Debug("local fallback limiter failed", log.String("policy", policy.Name), log.Error(err))
		} else if !allow {
			decision.Allowed = false
			decision.Remaining = 0
			decision.RetryAfter = retryAfter
			decision.ResetAt = now.Add(retryAfter)
			l.metrics.IncDecision(policy.Name, OutcomeRejected)
			return decision
		}
	}

	l.metrics.IncDecision(policy.Name, OutcomeFailOpen)
	return decision
}

func (l *Limiter) markStoreHealthy() {
	if l.degraded.CompareAndSwap(true, false) {
		l.logger.Info("rate limit store recovered, shared limits are enforced again")
	}
}

// callStore runs a single store call bounded by the store timeout and records its metrics.
func (l *Limiter) callStore(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	startTime := time.Now()
	err := fn(ctx)
	l.metrics.ObserveStoreLatency(op, time.Since(startTime))
	if err != nil {
		l.metrics.IncStoreErrors(op, storeErrorKindName(err))
	}
	return err
}
