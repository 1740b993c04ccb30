/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"github.com/acronis/go-reqguard/config"
	"github.com/acronis/go-reqguard/httpserver/middleware"
	"github.com/acronis/go-reqguard/log/logtest"
	"github.com/acronis/go-reqguard/restapi"
	"github.com/acronis/go-reqguard/testutil"
)

const testErrDomain = "ReqGuard"

type HTTPServerTestSuite struct {
	suite.Suite
	srv        *HTTPServer
	logger     *logtest.Recorder
	fatalErr   chan error
	baseURL    string
	identities []string
}

func TestHTTPServer(t *testing.T) {
	suite.Run(t, new(HTTPServerTestSuite))
}

func (s *HTTPServerTestSuite) SetupTest() {
	cfg := NewDefaultConfig()
	cfg.Address = testutil.GetLocalAddrWithFreeTCPPort()
	cfg.Limits.MaxBodySizeBytes = config.BytesCount(16)
	s.logger = logtest.NewRecorder()
	s.identities = nil

	s.srv = New(cfg, s.logger, Opts{
		ServiceNameInURL: "reqguard",
		ErrorDomain:      testErrDomain,
		RootMiddlewares: []func(http.Handler) http.Handler{
			func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
					if user := r.Header.Get("X-User"); user != "" {
						r = r.WithContext(middleware.NewContextWithIdentity(r.Context(), user))
					}
					next.ServeHTTP(rw, r)
				})
			},
		},
		APIRoutes: map[APIVersion]APIRoute{
			1: func(router chi.Router) {
				router.Get("/whoami", func(rw http.ResponseWriter, r *http.Request) {
					identity := middleware.GetIdentityFromContext(r.Context())
					s.identities = append(s.identities, identity)
					restapi.RespondJSON(rw, map[string]string{"identity": identity}, nil)
				})
				router.Post("/echo", func(rw http.ResponseWriter, r *http.Request) {
					var body map[string]interface{}
					if err := restapi.DecodeRequestJSON(r, &body); err != nil {
						restapi.RespondMalformedRequestOrInternalError(rw, testErrDomain, err, nil)
						return
					}
					restapi.RespondJSON(rw, body, nil)
				})
			},
		},
	})
	s.srv.MustRegisterMetrics()

	s.fatalErr = make(chan error, 1)
	go s.srv.Start(s.fatalErr)
	port, err := testutil.WaitPortAndListeningServer("127.0.0.1", s.srv.GetPort, 3*time.Second)
	s.Require().NoError(err)
	s.baseURL = fmt.Sprintf("http://127.0.0.1:%d", port)
}

func (s *HTTPServerTestSuite) TearDownTest() {
	s.Require().NoError(s.srv.Stop(true))
	s.srv.UnregisterMetrics()
	testutil.RequireNoErrorInChannel(s.T(), s.fatalErr)
	_, found := s.logger.FindEntry("HTTP server closed")
	s.Require().True(found)
}

func (s *HTTPServerTestSuite) do(method, path string, body io.Reader, header http.Header) *http.Response {
	req, err := http.NewRequest(method, s.baseURL+path, body)
	s.Require().NoError(err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *HTTPServerTestSuite) TestSystemEndpoints() {
	resp := s.do(http.MethodGet, "/healthz", nil, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().NotEmpty(resp.Header.Get("X-Request-ID"))

	s.do(http.MethodGet, "/api/reqguard/v1/whoami", nil, nil)

	resp = s.do(http.MethodGet, "/metrics", nil, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	metricsBody, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Require().Contains(string(metricsBody), `http_request_duration_seconds_count{method="GET",route_pattern="/api/reqguard/v1/whoami",status_code="200"} 1`)
	s.Require().NotContains(string(metricsBody), `route_pattern="/healthz"`)
}

func (s *HTTPServerTestSuite) TestAPIRoutes() {
	resp := s.do(http.MethodGet, "/api/reqguard/v1/whoami", nil, http.Header{"X-User": {"john"}})
	testutil.RequireJSONInResponse(s.T(), resp, &map[string]string{"identity": "john"}, &map[string]string{})
	s.Require().Equal([]string{"john"}, s.identities)

	resp = s.do(http.MethodPost, "/api/reqguard/v1/echo", strings.NewReader(`{"a":1}`), nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/reqguard/v1/echo", bytes.NewBufferString(`{"query":"SELECT * FROM t"}`), nil)
	testutil.RequireErrorInResponse(s.T(), resp, http.StatusRequestEntityTooLarge, testErrDomain, "requestEntityTooLarge")
}

func (s *HTTPServerTestSuite) TestNotFoundAndMethodNotAllowed() {
	resp := s.do(http.MethodGet, "/api/reqguard/v1/unknown", nil, nil)
	testutil.RequireErrorInResponse(s.T(), resp, http.StatusNotFound, testErrDomain, restapi.ErrCodeNotFound)

	resp = s.do(http.MethodDelete, "/api/reqguard/v1/whoami", nil, nil)
	testutil.RequireErrorInResponse(s.T(), resp, http.StatusMethodNotAllowed, testErrDomain, restapi.ErrCodeMethodNotAllowed)
}
