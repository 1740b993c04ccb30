/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

// response is the part of http.Response and httptest.ResponseRecorder the assertions look at.
type response struct {
	code   int
	header http.Header
	body   io.Reader
}

func fromRecorder(rec *httptest.ResponseRecorder) response {
	return response{rec.Code, rec.Header(), rec.Body}
}

func fromResponse(resp *http.Response) response {
	return response{resp.StatusCode, resp.Header, resp.Body}
}

// decodeJSON checks the content type and decodes the body into dest.
func (r response) decodeJSON(t require.TestingT, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, r.header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(r.body).Decode(dest))
}

func (r response) requireError(t require.TestingT, wantHTTPCode int, wantErrDomain, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, r.code)
	var errResp struct {
		Error struct {
			Domain string `json:"domain"`
			Code   string `json:"code"`
		} `json:"error"`
	}
	r.decodeJSON(t, &errResp)
	require.Equal(t, wantErrDomain, errResp.Error.Domain)
	require.Equal(t, wantErrCode, errResp.Error.Code)
}

func (r response) requireJSON(t require.TestingT, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	r.decodeJSON(t, dest)
	require.Equal(t, want, dest)
}

// RequireErrorInRecorder asserts that the recorded response is a restapi error with the domain and code.
func RequireErrorInRecorder(t require.TestingT, rec *httptest.ResponseRecorder, wantHTTPCode int, wantErrDomain, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	fromRecorder(rec).requireError(t, wantHTTPCode, wantErrDomain, wantErrCode)
}

// RequireErrorInResponse asserts that the response is a restapi error with the domain and code.
func RequireErrorInResponse(t require.TestingT, resp *http.Response, wantHTTPCode int, wantErrDomain, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	fromResponse(resp).requireError(t, wantHTTPCode, wantErrDomain, wantErrCode)
}

// RequireJSONInRecorder decodes the recorded JSON body into dest and compares it with want.
func RequireJSONInRecorder(t require.TestingT, rec *httptest.ResponseRecorder, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	fromRecorder(rec).requireJSON(t, want, dest)
}

// RequireJSONInResponse decodes the JSON body into dest and compares it with want.
func RequireJSONInResponse(t require.TestingT, resp *http.Response, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	fromResponse(resp).requireJSON(t, want, dest)
}

// RequireEmptyBodyInRecorder asserts that nothing was written to the response body.
func RequireEmptyBodyInRecorder(t require.TestingT, rec *httptest.ResponseRecorder) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Zero(t, rec.Body.Len(), "unexpected body: %s", rec.Body.String())
}

// RequireTooManyRequestsInRecorder asserts that the recorded response is the 429 answer of the rate limiting
// middleware: Retry-After header and {"error":"Too many requests","retryAfter":N} body.
func RequireTooManyRequestsInRecorder(t require.TestingT, rec *httptest.ResponseRecorder, wantRetryAfter int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, strconv.Itoa(wantRetryAfter), rec.Header().Get("Retry-After"))
	var body struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	fromRecorder(rec).decodeJSON(t, &body)
	require.Equal(t, "Too many requests", body.Error)
	require.Equal(t, wantRetryAfter, body.RetryAfter)
}

// RequireRateLimitHeaders asserts the X-RateLimit-Limit and X-RateLimit-Remaining values
// and that X-RateLimit-Reset is a positive Unix time.
func RequireRateLimitHeaders(t require.TestingT, header http.Header, wantLimit, wantRemaining int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, strconv.Itoa(wantLimit), header.Get("X-RateLimit-Limit"))
	require.Equal(t, strconv.Itoa(wantRemaining), header.Get("X-RateLimit-Remaining"))
	reset, err := strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, err)
	require.Positive(t, reset)
}
