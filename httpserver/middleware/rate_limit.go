/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/acronis/go-reqguard/internal/throttleconfig"
	"github.com/acronis/go-reqguard/log"
	"github.com/acronis/go-reqguard/ratelimit"
	"github.com/acronis/go-reqguard/restapi"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// Log fields added to the final entry of the Logging middleware.
const (
	RateLimitLogFieldPolicy    = "rate_limit_policy"
	RateLimitLogFieldKey       = "rate_limit_key"
	RateLimitLogFieldRemaining = "rate_limit_remaining"
	RateLimitLogFieldDegraded  = "rate_limit_degraded"
)

// RateLimitTooManyRequestsMessage is a value of the "error" field in the body of the rejected response.
const RateLimitTooManyRequestsMessage = "Too many requests"

// RateLimitChecker makes rate limiting decisions. It's implemented by *ratelimit.Limiter.
type RateLimitChecker interface {
	CheckRateLimit(ctx context.Context, identifier, policyName string) (ratelimit.Decision, error)
}

// RateLimitGetKeyFunc returns an identifier of the caller for rate limiting.
type RateLimitGetKeyFunc func(r *http.Request) (string, error)

// RateLimitOnRejectFunc is called when the request is rejected by the rate limiter.
type RateLimitOnRejectFunc func(rw http.ResponseWriter, r *http.Request, decision ratelimit.Decision, logger log.FieldLogger)

// RateLimitOnErrorFunc is called when the rate limiting decision cannot be made.
type RateLimitOnErrorFunc func(rw http.ResponseWriter, r *http.Request, errDomain string, err error, logger log.FieldLogger)

// RateLimitOpts represents an options for RateLimit middleware.
type RateLimitOpts struct {
	// GetKey returns an identifier of the caller. DefaultRateLimitGetKey is used by default.
	GetKey RateLimitGetKeyFunc
	// ErrDomain is a domain of the errors returned in the restapi format.
	ErrDomain string
	OnReject  RateLimitOnRejectFunc
	OnError   RateLimitOnErrorFunc
}

// TooManyRequestsResponse is a body of the response for the rejected request.
type TooManyRequestsResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

type rateLimitHandler struct {
	next       http.Handler
	checker    RateLimitChecker
	policyName string
	opts       RateLimitOpts
}

// RateLimit is a middleware that limits the rate of HTTP requests using the named policy of the checker.
// Every response gets X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset headers.
// Rejected requests get 429 status code, Retry-After header and JSON body with the number of seconds to wait.
func RateLimit(checker RateLimitChecker, policyName string) func(next http.Handler) http.Handler {
	return RateLimitWithOpts(checker, policyName, RateLimitOpts{})
}

// RateLimitWithOpts is a more configurable version of RateLimit middleware.
func RateLimitWithOpts(checker RateLimitChecker, policyName string, opts RateLimitOpts) func(next http.Handler) http.Handler {
	if opts.GetKey == nil {
		opts.GetKey = DefaultRateLimitGetKey
	}
	if opts.OnReject == nil {
		opts.OnReject = DefaultRateLimitOnReject
	}
	if opts.OnError == nil {
		opts.OnError = DefaultRateLimitOnError
	}
	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{next: next, checker: checker, policyName: policyName, opts: opts}
	}
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromContext(r.Context())

	key, err := h.opts.GetKey(r)
	if err != nil {
		h.opts.OnError(rw, r, h.opts.ErrDomain, fmt.Errorf("get rate limit key: %w", err), logger)
		return
	}

	decision, err := h.checker.CheckRateLimit(r.Context(), key, h.policyName)
	if err != nil {
		h.opts.OnError(rw, r, h.opts.ErrDomain, fmt.Errorf("check rate limit for policy %q: %w", h.policyName, err), logger)
		return
	}

	if lp := GetLoggingParamsFromContext(r.Context()); lp != nil {
		fields := []log.Field{
			log.String(RateLimitLogFieldPolicy, decision.Policy),
			log.String(RateLimitLogFieldKey, key),
			log.Int(RateLimitLogFieldRemaining, decision.Remaining),
		}
		if decision.Degraded {
			fields = append(fields, log.Bool(RateLimitLogFieldDegraded, true))
		}
		lp.ExtendFields(fields...)
	}

	setRateLimitHeaders(rw.Header(), decision)

	if !decision.Allowed {
		h.opts.OnReject(rw, r, decision, logger)
		return
	}
	h.next.ServeHTTP(rw, r)
}

func setRateLimitHeaders(header http.Header, decision ratelimit.Decision) {
	header.Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
	header.Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
	resetAt := int64(math.Ceil(float64(decision.ResetAt.UnixMilli()) / 1000))
	header.Set(HeaderRateLimitReset, strconv.FormatInt(resetAt, 10))
}

// DefaultRateLimitGetKey identifies the caller by identity from the request context ("user:<identity>")
// and falls back to the remote host ("ip:<host>") for anonymous requests.
func DefaultRateLimitGetKey(r *http.Request) (string, error) {
	if identity := GetIdentityFromContext(r.Context()); identity != "" {
		return "user:" + identity, nil
	}
	return "ip:" + remoteHost(r), nil
}

// NewRateLimitGetKeyFunc creates a function that identifies the caller according to the key configuration.
// Requests without the configured header are identified by the remote host.
func NewRateLimitGetKeyFunc(cfg throttleconfig.KeyConfig) (RateLimitGetKeyFunc, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case throttleconfig.KeyTypeHeader:
		headerName := cfg.HeaderName
		return func(r *http.Request) (string, error) {
			if v := r.Header.Get(headerName); v != "" {
				return "header:" + v, nil
			}
			return "ip:" + remoteHost(r), nil
		}, nil
	case throttleconfig.KeyTypeRemoteAddr:
		return func(r *http.Request) (string, error) {
			return "ip:" + remoteHost(r), nil
		}, nil
	default:
		return DefaultRateLimitGetKey, nil
	}
}

// DefaultRateLimitOnReject sends 429 response with Retry-After header and TooManyRequestsResponse in body.
func DefaultRateLimitOnReject(rw http.ResponseWriter, r *http.Request, decision ratelimit.Decision, logger log.FieldLogger) {
	retryAfter := decision.RetryAfterSeconds()
	if logger != nil {
		logger.Warn("rate limit exceeded",
			log.String(RateLimitLogFieldPolicy, decision.Policy),
			log.Int("retry_after_s", retryAfter),
		)
	}
	rw.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))
	restapi.RespondCodeAndJSON(rw, http.StatusTooManyRequests,
		TooManyRequestsResponse{Error: RateLimitTooManyRequestsMessage, RetryAfter: retryAfter}, logger)
}

// DefaultRateLimitOnError logs the error and sends 500 response with internal error in the restapi format.
func DefaultRateLimitOnError(rw http.ResponseWriter, r *http.Request, errDomain string, err error, logger log.FieldLogger) {
	if logger != nil {
		logger.Error("rate limiting failed", log.Error(err))
	}
	restapi.RespondInternalError(rw, errDomain, logger)
}
