/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRequireSamplesCountInCounter(t *testing.T) {
	decisions := prometheus.NewCounter(prometheus.CounterOpts{Name: "decisions"})
	decisions.Add(42)

	mockT := &MockT{}
	RequireSamplesCountInCounter(mockT, decisions, 41)
	require.True(t, mockT.Failed)

	mockT = &MockT{}
	RequireSamplesCountInCounter(mockT, decisions, 42)
	require.False(t, mockT.Failed)
}

func TestRequireSamplesCountInHistogram(t *testing.T) {
	durations := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "durations", Buckets: []float64{0.01, 0.1, 1}})
	durations.Observe(0.05)

	mockT := &MockT{}
	RequireSamplesCountInHistogram(mockT, durations, 0)
	require.True(t, mockT.Failed)

	mockT = &MockT{}
	RequireSamplesCountInHistogram(mockT, durations, 1)
	require.False(t, mockT.Failed)
}

func TestRequireGaugeValue(t *testing.T) {
	entries := prometheus.NewGauge(prometheus.GaugeOpts{Name: "entries"})
	entries.Set(7)

	mockT := &MockT{}
	RequireGaugeValue(mockT, entries, 7)
	require.False(t, mockT.Failed)

	mockT = &MockT{}
	RequireGaugeValue(mockT, entries, 8)
	require.True(t, mockT.Failed)
}
