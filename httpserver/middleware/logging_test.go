/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqguard/log"
	"github.com/acronis/go-reqguard/log/logtest"
)

func findStringField(t *testing.T, entry logtest.RecordedEntry, key string) string {
	t.Helper()
	field, found := entry.FindField(key)
	require.True(t, found, "field %q is not found", key)
	return string(field.Bytes)
}

func TestLogging(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	var loggerFromCtx log.FieldLogger
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		loggerFromCtx = GetLoggerFromContext(r.Context())
		GetLoggingParamsFromContext(r.Context()).ExtendFields(log.String("cache_result", "hit"))
		rw.WriteHeader(http.StatusCreated)
		_, _ = rw.Write([]byte("created"))
	})
	handler := RequestIDWithOpts(RequestIDOpts{
		GenerateID:         func() string { return "ext-id" },
		GenerateInternalID: func() string { return "int-id" },
	})(LoggingWithOpts(logRecorder, LoggingOpts{RequestStart: true})(next))

	req := httptest.NewRequest(http.MethodPost, "/api/reqguard/v1/cache/analyze?x=1", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set(headerForwardedFor, "203.0.113.9, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, loggerFromCtx)
	require.Len(t, logRecorder.Entries(), 2)

	started, found := logRecorder.FindEntry("request started")
	require.True(t, found)
	require.Equal(t, "ext-id", findStringField(t, started, "request_id"))

	completed := logRecorder.Entries()[1]
	require.Equal(t, log.LevelInfo, completed.Level)
	require.Contains(t, completed.Text, "response completed in")
	require.Equal(t, "ext-id", findStringField(t, completed, "request_id"))
	require.Equal(t, "int-id", findStringField(t, completed, "int_request_id"))
	require.Equal(t, http.MethodPost, findStringField(t, completed, "method"))
	require.Equal(t, "/api/reqguard/v1/cache/analyze?x=1", findStringField(t, completed, "uri"))
	require.Equal(t, "test-agent", findStringField(t, completed, "user_agent"))
	require.Equal(t, "203.0.113.9", findStringField(t, completed, "origin_addr"))
	require.Equal(t, "hit", findStringField(t, completed, "cache_result"))
	statusField, found := completed.FindField("status")
	require.True(t, found)
	require.EqualValues(t, http.StatusCreated, statusField.Int)
	bytesField, found := completed.FindField("bytes_sent")
	require.True(t, found)
	require.EqualValues(t, len("created"), bytesField.Int)
}

func TestLogging_ExcludedEndpoints(t *testing.T) {
	status := http.StatusOK
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(status)
	})
	logRecorder := logtest.NewRecorder()
	handler := LoggingWithOpts(logRecorder, LoggingOpts{ExcludedEndpoints: []string{"/healthz"}})(next)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Empty(t, logRecorder.Entries())

	status = http.StatusServiceUnavailable
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Len(t, logRecorder.Entries(), 1)
}

func TestLogging_SlowRequest(t *testing.T) {
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
	})
	logRecorder := logtest.NewRecorder()
	handler := LoggingWithOpts(logRecorder, LoggingOpts{SlowRequestThreshold: 10 * time.Millisecond})(next)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))

	require.Len(t, logRecorder.Entries(), 1)
	entry := logRecorder.Entries()[0]
	require.Equal(t, log.LevelWarn, entry.Level)
	statusField, _ := entry.FindField("status")
	require.EqualValues(t, http.StatusOK, statusField.Int)
}
