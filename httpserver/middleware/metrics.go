/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	httpRequestMetricsLabelMethod       = "method"
	httpRequestMetricsLabelRoutePattern = "route_pattern"
	httpRequestMetricsLabelStatusCode   = "status_code"
)

// DefaultHTTPRequestDurationBuckets are used when HTTPRequestMetricsCollectorOpts.DurationBuckets is nil.
var DefaultHTTPRequestDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type HTTPRequestMetricsCollectorOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// HTTPRequestMetricsCollector holds request durations (by method, route and status) and in-flight requests (by method).
type HTTPRequestMetricsCollector struct {
	Durations *prometheus.HistogramVec
	InFlight  *prometheus.GaugeVec
}

func NewHTTPRequestMetricsCollector() *HTTPRequestMetricsCollector {
	return NewHTTPRequestMetricsCollectorWithOpts(HTTPRequestMetricsCollectorOpts{})
}

func NewHTTPRequestMetricsCollectorWithOpts(opts HTTPRequestMetricsCollectorOpts) *HTTPRequestMetricsCollector {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = DefaultHTTPRequestDurationBuckets
	}
	durationOpts := prometheus.HistogramOpts{
		Namespace:   opts.Namespace,
		Name:        "http_request_duration_seconds",
		Help:        "Duration of served HTTP requests.",
		Buckets:     buckets,
		ConstLabels: opts.ConstLabels,
	}
	inFlightOpts := prometheus.GaugeOpts{
		Namespace:   opts.Namespace,
		Name:        "http_requests_in_flight",
		Help:        "Number of HTTP requests being served now.",
		ConstLabels: opts.ConstLabels,
	}
	return &HTTPRequestMetricsCollector{
		Durations: prometheus.NewHistogramVec(durationOpts, []string{
			httpRequestMetricsLabelMethod, httpRequestMetricsLabelRoutePattern, httpRequestMetricsLabelStatusCode,
		}),
		InFlight: prometheus.NewGaugeVec(inFlightOpts, []string{httpRequestMetricsLabelMethod}),
	}
}

// MustRegister registers the collector in the default Prometheus registry.
func (c *HTTPRequestMetricsCollector) MustRegister() {
	prometheus.MustRegister(c.Durations, c.InFlight)
}

func (c *HTTPRequestMetricsCollector) Unregister() {
	prometheus.Unregister(c.Durations)
	prometheus.Unregister(c.InFlight)
}

func (c *HTTPRequestMetricsCollector) observe(r *http.Request, routePattern string, status int, started time.Time) {
	c.Durations.WithLabelValues(r.Method, routePattern, strconv.Itoa(status)).Observe(time.Since(started).Seconds())
}

type httpRequestMetricsHandler struct {
	next              http.Handler
	collector         *HTTPRequestMetricsCollector
	getRoutePattern   RoutePatternGetterFunc
	excludedEndpoints []string
}

// HTTPRequestMetrics observes every request except excludedEndpoints. The route pattern is taken
// after the handler returns, so the middleware works when mounted before the router.
// A panicking request is counted with 500 status and the panic is propagated.
func HTTPRequestMetrics(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc, excludedEndpoints ...string,
) func(next http.Handler) http.Handler {
	if getRoutePattern == nil {
		panic("function for getting route pattern cannot be nil")
	}
	return func(next http.Handler) http.Handler {
		return &httpRequestMetricsHandler{next, collector, getRoutePattern, excludedEndpoints}
	}
}

func (h *httpRequestMetricsHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if slices.Contains(h.excludedEndpoints, r.URL.Path) {
		h.next.ServeHTTP(rw, r)
		return
	}

	started := GetRequestStartTimeFromContext(r.Context())
	if started.IsZero() {
		started = time.Now()
		r = r.WithContext(NewContextWithRequestStartTime(r.Context(), started))
	}

	inFlight := h.collector.InFlight.WithLabelValues(r.Method)
	inFlight.Inc()
	defer inFlight.Dec()

	wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
	defer func() {
		p := recover()
		switch {
		case p == nil:
			h.collector.observe(r, h.getRoutePattern(r), responseStatus(wrw), started)
			return
		case p != http.ErrAbortHandler: //nolint:errorlint // sentinel panic value
			h.collector.observe(r, h.getRoutePattern(r), http.StatusInternalServerError, started)
		}
		panic(p)
	}()

	h.next.ServeHTTP(wrw, r)
}
