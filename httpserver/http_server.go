/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-reqguard/httpserver/middleware"
	"github.com/acronis/go-reqguard/log"
	"github.com/acronis/go-reqguard/service"
)

// systemEndpoints is a list of endpoints which are not involved in metrics collecting.
var systemEndpoints = []string{"/metrics", "/healthz"}

// APIVersion is a type alias for API version.
type APIVersion = int

// APIRoute is a type alias for single API route.
type APIRoute = func(router chi.Router)

// HTTPRequestMetricsOpts represents options for the metrics middleware that is used in HTTPServer.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// Opts represents options for creating HTTPServer.
type Opts struct {
	// ServiceNameInURL is a prefix for API routes (e.g., "/api/service_name/v1").
	ServiceNameInURL string
	// APIRoutes is a map of API versions to their route configuration functions.
	APIRoutes map[APIVersion]APIRoute
	// RootMiddlewares are applied to all routes after the default ones.
	RootMiddlewares []func(http.Handler) http.Handler
	// ErrorDomain is used for error response formatting.
	ErrorDomain string
	// HealthCheck is a function that performs health check logic.
	HealthCheck HealthCheck
	// MetricsHandler is a handler for the /metrics endpoint. promhttp.Handler() is used by default.
	MetricsHandler     http.Handler
	HTTPRequestMetrics HTTPRequestMetricsOpts
	// Listener is used instead of listening on the configured address if set.
	Listener net.Listener
}

// HTTPServer represents a wrapper around http.Server with chi.Router as a handler.
// It implements service.Unit and service.MetricsRegisterer interfaces.
type HTTPServer struct {
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener       net.Listener
	port           atomic.Int32
	httpServerDone atomic.Value
	metrics        *middleware.HTTPRequestMetricsCollector
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates a new HTTPServer with predefined request ids, logging, metrics collecting,
// recovering after panics, request body limiting and health-checking functionality.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer { //nolint:gocritic // opts is passed once
	metrics := middleware.NewHTTPRequestMetricsCollectorWithOpts(middleware.HTTPRequestMetricsCollectorOpts{
		Namespace:       opts.HTTPRequestMetrics.Namespace,
		DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
		ConstLabels:     opts.HTTPRequestMetrics.ConstLabels,
	})
	router := chi.NewRouter()
	applyDefaultMiddlewares(router, cfg, logger, opts.ErrorDomain, metrics)
	router.Use(opts.RootMiddlewares...)
	configureRouter(router, logger, opts)

	return &HTTPServer{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
			IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
			Handler:           router,
		},
		HTTPRouter:      router,
		Logger:          logger,
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		listener:        opts.Listener,
		metrics:         metrics,
	}
}

// Start serves HTTP requests and blocks until the server is stopped.
// Listen and serve errors (except http.ErrServerClosed) are sent to fatalErr.
func (s *HTTPServer) Start(fatalErr chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.httpServerDone.Store(done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting HTTP server...")

	err := s.listen()
	if err == nil {
		err = s.HTTPServer.Serve(s.listener)
	}
	switch {
	case errors.Is(err, http.ErrServerClosed):
		logger.Info("HTTP server closed")
	case err != nil:
		logger.Error("HTTP server error", log.Error(err))
		fatalErr <- err
	}
}

func (s *HTTPServer) listen() error {
	if s.listener == nil {
		ln, err := net.Listen("tcp", s.HTTPServer.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", s.HTTPServer.Addr, err)
		}
		s.listener = ln
	}
	if tcpAddr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(tcpAddr.Port)) //nolint:gosec // port fits into int32
	}
	return nil
}

// Stop closes the server immediately or, if gracefully is true, waits up to ShutdownTimeout
// for active requests to finish. It returns after Start has returned.
func (s *HTTPServer) Stop(gracefully bool) error {
	defer func() {
		if done, ok := s.httpServerDone.Load().(chan struct{}); ok {
			<-done
		}
	}()

	var err error
	if gracefully {
		s.Logger.Info("shutting down HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
		ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		err = s.HTTPServer.Shutdown(ctx)
	} else {
		s.Logger.Info("closing HTTP server...")
		err = s.HTTPServer.Close()
	}
	if err != nil {
		s.Logger.Error("HTTP server stop error", log.Error(err), log.Bool("graceful", gracefully))
		return err
	}
	s.Logger.Info("HTTP server stopped")
	return nil
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (s *HTTPServer) MustRegisterMetrics() {
	s.metrics.MustRegister()
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (s *HTTPServer) UnregisterMetrics() {
	s.metrics.Unregister()
}

// GetPort returns the port the server listens on, 0 until the server is started.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
