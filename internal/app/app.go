/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package app wires the adaptive cache and the distributed rate limiter into an HTTP service.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-reqguard/adaptivecache"
	"github.com/acronis/go-reqguard/httpserver"
	"github.com/acronis/go-reqguard/httpserver/middleware"
	"github.com/acronis/go-reqguard/log"
	"github.com/acronis/go-reqguard/ratelimit"
	"github.com/acronis/go-reqguard/restapi"
	"github.com/acronis/go-reqguard/retry"
	"github.com/acronis/go-reqguard/service"
)

// ServiceName is used in the URL of API routes (/api/reqguard/v1/...).
const ServiceName = "reqguard"

// ErrorDomain is a domain of errors returned by the service API.
const ErrorDomain = "ReqGuard"

// Health-check component names.
const (
	HealthComponentCache          = "cache"
	HealthComponentRateLimitStore = "rate_limit_store"
)

const (
	cacheMetricsLabel = "cache"
	itemsCacheName    = "items"
	sessionsCacheName = "sessions"

	defaultSessionTTL = time.Hour
)

// Item is a demo resource served through the cache.
type Item struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ComputedAt time.Time `json:"computedAt"`
}

// ItemLoader produces an item on a cache miss.
type ItemLoader func(ctx context.Context, id string) (Item, error)

// Opts represents optional parameters of the App.
type Opts struct {
	// LoadItem is called when the requested item is not cached. A stub producing a synthetic item is used if nil.
	LoadItem ItemLoader

	// Listener is used by the HTTP server instead of listening on the configured address if set.
	Listener net.Listener

	// StorePingPolicy is used to wait for the Redis store at start.
	// Exponential backoff with 5 attempts is used if nil.
	StorePingPolicy retry.Policy

	// Now returns the current time. time.Now is used if nil.
	Now func() time.Time
}

// App is the service: HTTP API guarded by the rate limiter, the caches, background sweeps and the limiter store.
// It implements service.Unit and service.MetricsRegisterer interfaces.
type App struct {
	Items    *adaptivecache.AdaptiveCache[Item]
	Sessions *adaptivecache.AdaptiveCache[string]
	Limiter  *ratelimit.Limiter
	Server   *httpserver.HTTPServer

	cfg            *Config
	logger         log.FieldLogger
	loadItem       ItemLoader
	now            func() time.Time
	cacheMetrics   *adaptivecache.PrometheusMetrics
	limiterMetrics *ratelimit.PrometheusMetrics
	storeUnit      *service.ResourceUnit
	units          *service.CompositeUnit
}

var _ service.Unit = (*App)(nil)
var _ service.MetricsRegisterer = (*App)(nil)

// New creates the App. The rate limit store is created here but its connection is checked in Start.
func New(ctx context.Context, cfg *Config, logger log.FieldLogger, opts Opts) (*App, error) {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LoadItem == nil {
		opts.LoadItem = newStubItemLoader(opts.Now)
	}
	if opts.StorePingPolicy == nil {
		opts.StorePingPolicy = retry.NewExponentialBackoffPolicy(100*time.Millisecond, 5).WithMaxInterval(2 * time.Second)
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		loadItem: opts.LoadItem,
		now:      opts.Now,
		cacheMetrics: adaptivecache.NewPrometheusMetricsWithOpts(
			adaptivecache.PrometheusMetricsOpts{CurriedLabelNames: []string{cacheMetricsLabel}}),
		limiterMetrics: ratelimit.NewPrometheusMetrics(),
	}

	var err error
	if a.Items, err = newCache[Item](a, itemsCacheName, cfg.Cache.Options()); err != nil {
		return nil, err
	}
	sessionOpts := cfg.Cache.Options()
	sessionOpts.DefaultTTL = defaultSessionTTL
	if a.Sessions, err = newCache[string](a, sessionsCacheName, sessionOpts); err != nil {
		return nil, err
	}

	store, err := ratelimit.NewStore(ctx, cfg.RateLimit.Store, opts.Now)
	if err != nil {
		return nil, fmt.Errorf("create rate limit store: %w", err)
	}
	limiterOpts := cfg.RateLimit.Opts()
	limiterOpts.MetricsCollector = a.limiterMetrics
	limiterOpts.Logger = logger.With(log.String("component", "rate_limiter"))
	limiterOpts.Now = opts.Now
	if a.Limiter, err = ratelimit.New(store, limiterOpts); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}
	a.storeUnit = service.NewResourceUnit("rate limit store", func(ctx context.Context) error {
		return a.checkStore(ctx, store, opts.StorePingPolicy)
	}, a.Limiter.Close)

	rateLimitGetKey, err := middleware.NewRateLimitGetKeyFunc(cfg.Server.RateLimitKey)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create rate limit key func: %w", err)
	}

	a.Server = httpserver.New(cfg.Server, logger, httpserver.Opts{
		ServiceNameInURL: ServiceName,
		ErrorDomain:      ErrorDomain,
		APIRoutes:        map[httpserver.APIVersion]httpserver.APIRoute{1: a.apiRoutesV1(rateLimitGetKey)},
		RootMiddlewares:  []func(http.Handler) http.Handler{a.identityMiddleware},
		HealthCheck:      a.healthCheck,
		Listener:         opts.Listener,
	})

	cleanupLogger := log.NewPrefixedLogger(logger, "[cleanup] ")
	a.units = service.NewCompositeUnit(
		a.Server,
		service.NewWorkerUnit(a.newCacheCleanupWorker(cleanupLogger)),
		service.NewWorkerUnit(ratelimit.NewCleanupWorker(
			a.Limiter, time.Duration(cfg.RateLimit.CleanupInterval), cleanupLogger)),
	)
	return a, nil
}

func newCache[V any](a *App, name string, opts adaptivecache.Options) (*adaptivecache.AdaptiveCache[V], error) {
	opts.MetricsCollector = a.cacheMetrics.MustCurryWith(prometheus.Labels{cacheMetricsLabel: name})
	opts.Logger = a.logger.With(log.String("cache", name))
	opts.Now = a.now
	c, err := adaptivecache.New[V](opts)
	if err != nil {
		return nil, fmt.Errorf("create %s cache: %w", name, err)
	}
	return c, nil
}

func (a *App) newCacheCleanupWorker(logger log.FieldLogger) *service.PeriodicWorker {
	interval := time.Duration(a.cfg.Cache.CleanupInterval)
	if interval <= 0 {
		interval = adaptivecache.DefaultCleanupInterval
	}
	worker := service.WorkerFunc(func(ctx context.Context) error {
		a.Items.Cleanup()
		a.Sessions.Cleanup()
		return nil
	})
	return service.NewPeriodicWorkerWithOpts(worker, interval, logger,
		service.PeriodicWorkerOpts{Name: "cache_cleanup", InitialDelay: interval})
}

// checkStore waits until the Redis store answers. An unreachable store is not fatal:
// the limiter admits requests while the store is down.
func (a *App) checkStore(ctx context.Context, store ratelimit.Store, policy retry.Policy) error {
	redisStore, ok := store.(*ratelimit.RedisStore)
	if !ok {
		return nil
	}
	if err := redisStore.PingWithRetry(ctx, policy, a.logger); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("rate limit store is not reachable, requests are admitted until it recovers", log.Error(err))
	}
	return nil
}

func (a *App) healthCheck(_ context.Context) (httpserver.HealthCheckResult, error) {
	storeStatus := httpserver.HealthCheckStatusOK
	if a.Limiter.Degraded() {
		storeStatus = httpserver.HealthCheckStatusDegraded
	}
	return httpserver.HealthCheckResult{
		HealthComponentCache:          httpserver.HealthCheckStatusOK,
		HealthComponentRateLimitStore: storeStatus,
	}, nil
}

func (a *App) apiRoutesV1(getKey middleware.RateLimitGetKeyFunc) httpserver.APIRoute {
	rateLimit := func(policy string) func(http.Handler) http.Handler {
		return middleware.RateLimitWithOpts(a.Limiter, policy, middleware.RateLimitOpts{
			GetKey:    getKey,
			ErrDomain: ErrorDomain,
		})
	}
	return func(router chi.Router) {
		router.Group(func(r chi.Router) {
			r.Use(rateLimit(ratelimit.PolicyAPI))
			r.Get("/cache/stats", a.handleCacheStats)
			r.Get("/cache/analytics", a.handleCacheAnalytics)
			r.Post("/cache/analyze", a.handleCacheAnalyze)
			r.Get("/cache/queries", a.handleCacheQueries)
			r.Get("/items/{id}", a.handleGetItem)
		})
		router.With(rateLimit(ratelimit.PolicyAuth)).Post("/auth/login", a.handleLogin)
	}
}

// Start checks the rate limit store connection and then starts the HTTP server and the background workers.
func (a *App) Start(fatalErr chan<- error) {
	storeErr := make(chan error, 1)
	a.storeUnit.Start(storeErr)
	select {
	case err := <-storeErr:
		fatalErr <- err
		return
	default:
	}
	a.units.Start(fatalErr)
}

// Stop stops the HTTP server and the workers and then closes the rate limit store.
func (a *App) Stop(gracefully bool) error {
	var errs []error
	if err := a.units.Stop(gracefully); err != nil {
		errs = append(errs, err)
	}
	if err := a.storeUnit.Stop(gracefully); err != nil {
		errs = append(errs, err)
	}
	if len(errs) != 0 {
		return &service.CompositeUnitError{UnitErrors: errs}
	}
	return nil
}

// MustRegisterMetrics registers metrics of all components in Prometheus client.
func (a *App) MustRegisterMetrics() {
	restapi.MustInitAndRegisterMetrics("")
	a.cacheMetrics.MustRegister()
	a.limiterMetrics.MustRegister()
	a.units.MustRegisterMetrics()
}

// UnregisterMetrics unregisters metrics of all components in Prometheus client.
func (a *App) UnregisterMetrics() {
	a.units.UnregisterMetrics()
	a.limiterMetrics.Unregister()
	a.cacheMetrics.Unregister()
	restapi.UnregisterMetrics()
}

func newStubItemLoader(now func() time.Time) ItemLoader {
	return func(_ context.Context, id string) (Item, error) {
		return Item{ID: id, Name: "Item " + id, ComputedAt: now()}, nil
	}
}
