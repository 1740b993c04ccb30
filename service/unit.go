/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

// Unit is a component of the service with its own lifecycle: an HTTP server, a background worker,
// a connection to the rate limit store.
type Unit interface {
	// Start runs the unit. It may return right after initialization or block while the unit is running.
	// A failure is reported by sending exactly one error to fatalErr; on success nothing is sent.
	// The channel must not be used after Start returns.
	Start(fatalErr chan<- error)

	// Stop halts the unit, cleanly if gracefully is true.
	// It may be called even if Start failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus collectors.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}

func forEachMetricsRegisterer(units []Unit, fn func(MetricsRegisterer)) {
	for _, u := range units {
		if mr, ok := u.(MetricsRegisterer); ok {
			fn(mr)
		}
	}
}
