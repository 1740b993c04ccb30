/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/acronis/go-reqguard/log"
)

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// DefaultSlowRequestThreshold is used when LoggingOpts.SlowRequestThreshold is not positive.
const DefaultSlowRequestThreshold = time.Second

// LoggingOpts represents an options for Logging middleware.
type LoggingOpts struct {
	RequestStart         bool
	ExcludedEndpoints    []string
	SlowRequestThreshold time.Duration
}

type loggingHandler struct {
	next   http.Handler
	logger log.FieldLogger
	opts   LoggingOpts
}

// Logging logs every completed request (slow ones at warn level) and puts a logger
// with request ids into the request context.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	if opts.SlowRequestThreshold <= 0 {
		opts.SlowRequestThreshold = DefaultSlowRequestThreshold
	}
	return func(next http.Handler) http.Handler {
		return &loggingHandler{next: next, logger: logger, opts: opts}
	}
}

func (h *loggingHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	started := GetRequestStartTimeFromContext(ctx)
	if started.IsZero() {
		started = time.Now()
		ctx = NewContextWithRequestStartTime(ctx, started)
	}

	// Handlers get the logger with request ids only, request details are logged once per request.
	handlerLogger := h.logger.With(
		log.String("request_id", GetRequestIDFromContext(ctx)),
		log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
	)
	logger := handlerLogger.With(requestLogFields(r)...)

	excluded := slices.Contains(h.opts.ExcludedEndpoints, r.URL.Path)
	if h.opts.RequestStart && !excluded {
		logger.Info("request started")
	}

	lp := &LoggingParams{}
	ctx = NewContextWithLoggingParams(NewContextWithLogger(ctx, handlerLogger), lp)
	wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
	h.next.ServeHTTP(wrw, r.WithContext(ctx))

	status := responseStatus(wrw)
	if excluded && status < http.StatusBadRequest {
		return
	}
	elapsed := time.Since(started)
	logFn := logger.Info
	if elapsed >= h.opts.SlowRequestThreshold {
		logFn = logger.Warn
	}
	logFn(fmt.Sprintf("response completed in %.3fs", elapsed.Seconds()), append([]log.Field{
		log.Int64("duration_ms", elapsed.Milliseconds()),
		log.Int("status", status),
		log.Int("bytes_sent", wrw.BytesWritten()),
	}, lp.Fields()...)...)
}

func requestLogFields(r *http.Request) []log.Field {
	fields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", r.RequestURI),
		log.String("remote_addr", r.RemoteAddr),
		log.Int64("content_length", r.ContentLength),
		log.String("user_agent", r.UserAgent()),
	}
	if originAddr := getOriginAddr(r); originAddr != "" {
		fields = append(fields, log.String("origin_addr", originAddr))
	}
	return fields
}

// responseStatus returns 200 for handlers that have written nothing.
func responseStatus(wrw WrapResponseWriter) int {
	if status := wrw.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}

// getOriginAddr returns the first X-Forwarded-For address or X-Real-IP.
func getOriginAddr(r *http.Request) string {
	if forwardedFor := r.Header.Get(headerForwardedFor); forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(r.Header.Get(headerRealIP))
}

// remoteHost returns the host part of the request's remote address.
func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
