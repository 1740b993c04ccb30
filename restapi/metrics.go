/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-reqguard/internal/libinfo"
)

var metricsResponseErrors atomic.Pointer[prometheus.CounterVec]

const (
	metricsSubsystem = "restapi"

	metricsLabelResponseErrorDomain = "domain"
	metricsLabelResponseErrorCode   = "code"
)

func loadResponseErrorsMetrics() *prometheus.CounterVec {
	return metricsResponseErrors.Load()
}

// MustInitAndRegisterMetrics initializes and registers the counter of error responses. Panic will be raised in case of error.
func MustInitAndRegisterMetrics(namespace string) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   metricsSubsystem,
		Name:        "response_errors_total",
		Help:        "The total number of REST API errors that were respond.",
		ConstLabels: libinfo.AddPrometheusLibVersionLabel(nil),
	}, []string{metricsLabelResponseErrorDomain, metricsLabelResponseErrorCode})
	prometheus.MustRegister(counter)
	metricsResponseErrors.Store(counter)
}

// UnregisterMetrics unregisters the counter of error responses.
func UnregisterMetrics() {
	if counter := metricsResponseErrors.Swap(nil); counter != nil {
		prometheus.Unregister(counter)
	}
}
