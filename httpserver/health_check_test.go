/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqguard/httpserver/middleware"
	"github.com/acronis/go-reqguard/log/logtest"
	"github.com/acronis/go-reqguard/testutil"
)

func TestHealthCheckHandler(t *testing.T) {
	serve := func(fn HealthCheck, ctx context.Context) (*httptest.ResponseRecorder, *logtest.Recorder) {
		logRecorder := logtest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(ctx)
		req = req.WithContext(middleware.NewContextWithLogger(req.Context(), logRecorder))
		resp := httptest.NewRecorder()
		NewHealthCheckHandler(fn).ServeHTTP(resp, req)
		return resp, logRecorder
	}

	t.Run("error", func(t *testing.T) {
		resp, logRecorder := serve(func(ctx context.Context) (HealthCheckResult, error) {
			return nil, errors.New("internal error")
		}, context.Background())
		require.Equal(t, http.StatusInternalServerError, resp.Code)
		_, found := logRecorder.FindEntry("error while checking health")
		require.True(t, found)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		resp, _ := serve(nil, ctx)
		require.Equal(t, StatusClientClosedRequest, resp.Code)
	})

	t.Run("no components", func(t *testing.T) {
		resp, _ := serve(nil, context.Background())
		testutil.RequireJSONInRecorder(t, resp,
			&healthCheckResponseData{Components: map[string]bool{}}, &healthCheckResponseData{})
	})

	t.Run("degraded component", func(t *testing.T) {
		resp, _ := serve(func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{"cache": HealthCheckStatusOK, "rate_limit_store": HealthCheckStatusDegraded}, nil
		}, context.Background())
		require.Equal(t, http.StatusOK, resp.Code)
		testutil.RequireJSONInRecorder(t, resp, &healthCheckResponseData{
			Components: map[string]bool{"cache": true, "rate_limit_store": true},
			Degraded:   []string{"rate_limit_store"},
		}, &healthCheckResponseData{})
	})

	t.Run("failed component", func(t *testing.T) {
		resp, _ := serve(func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{"cache": HealthCheckStatusOK, "db": HealthCheckStatusFail}, nil
		}, context.Background())
		require.Equal(t, http.StatusServiceUnavailable, resp.Code)
		testutil.RequireJSONInRecorder(t, resp,
			&healthCheckResponseData{Components: map[string]bool{"cache": true, "db": false}}, &healthCheckResponseData{})
	})
}
