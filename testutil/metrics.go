/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// RequireSamplesCountInHistogram asserts the number of observations in the histogram.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Histogram, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var m dto.Metric
	require.NoError(t, hist.Write(&m))
	require.Equal(t, uint64(wantSamplesCount), m.GetHistogram().GetSampleCount()) //nolint:gosec // test values are small
}

// RequireSamplesCountInCounter asserts the value of the counter.
func RequireSamplesCountInCounter(t require.TestingT, counter prometheus.Counter, wantCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, float64(wantCount), promtestutil.ToFloat64(counter))
}

// RequireGaugeValue asserts the value of the gauge, e.g. the number of in-flight requests or cache entries.
func RequireGaugeValue(t require.TestingT, gauge prometheus.Gauge, want float64) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, want, promtestutil.ToFloat64(gauge))
}
