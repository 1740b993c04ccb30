/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqguard/testutil"
)

func TestHTTPRequestMetrics(t *testing.T) {
	collector := NewHTTPRequestMetricsCollector()
	var inFlightDuringRequest float64

	router := chi.NewRouter()
	router.Use(HTTPRequestMetrics(collector, GetChiRoutePattern, "/healthz"))
	router.Get("/items/{id}", func(rw http.ResponseWriter, r *http.Request) {
		inFlightDuringRequest = promtestutil.ToFloat64(collector.InFlight.WithLabelValues(http.MethodGet))
		if chi.URLParam(r, "id") == "0" {
			rw.WriteHeader(http.StatusNotFound)
		}
	})
	router.Get("/healthz", func(rw http.ResponseWriter, r *http.Request) {})
	router.Get("/panic", func(rw http.ResponseWriter, r *http.Request) { panic("boom") })

	for _, path := range []string{"/items/1", "/items/2", "/items/0", "/healthz"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	require.Panics(t, func() {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/panic", nil))
	})

	require.Equal(t, float64(1), inFlightDuringRequest)
	testutil.RequireGaugeValue(t, collector.InFlight.WithLabelValues(http.MethodGet), 0)

	observe := func(route, status string) prometheus.Histogram {
		return collector.Durations.With(prometheus.Labels{
			httpRequestMetricsLabelMethod:       http.MethodGet,
			httpRequestMetricsLabelRoutePattern: route,
			httpRequestMetricsLabelStatusCode:   status,
		}).(prometheus.Histogram)
	}
	testutil.RequireSamplesCountInHistogram(t, observe("/items/{id}", "200"), 2)
	testutil.RequireSamplesCountInHistogram(t, observe("/items/{id}", "404"), 1)
	testutil.RequireSamplesCountInHistogram(t, observe("/panic", "500"), 1)
	testutil.RequireSamplesCountInHistogram(t, observe("/healthz", "200"), 0)
}

func TestHTTPRequestMetrics_NilRoutePatternGetter(t *testing.T) {
	require.Panics(t, func() {
		HTTPRequestMetrics(NewHTTPRequestMetricsCollector(), nil)
	})
}
