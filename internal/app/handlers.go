/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/acronis/go-reqguard/adaptivecache"
	"github.com/acronis/go-reqguard/httpserver/middleware"
	"github.com/acronis/go-reqguard/log"
	"github.com/acronis/go-reqguard/restapi"
)

// Error codes of the service API.
const (
	ErrCodeInvalidQuery       = "invalidQuery"
	ErrCodeInvalidCredentials = "invalidCredentials"
	ErrCodeItemNotFound       = "itemNotFound"
)

const itemKeyPrefix = "item:"

// ErrItemNotFound may be returned by ItemLoader when the item doesn't exist.
var ErrItemNotFound = errors.New("item not found")

// AnalyzeQueryRequest is a body of POST /cache/analyze.
type AnalyzeQueryRequest struct {
	Query           string `json:"query"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
}

// LoginRequest is a body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is a body of the successful POST /auth/login response.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

// CacheStatsResponse is a body of GET /cache/stats.
type CacheStatsResponse struct {
	Items    adaptivecache.Statistics `json:"items"`
	Sessions adaptivecache.Statistics `json:"sessions"`
}

func (a *App) handleCacheStats(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, CacheStatsResponse{Items: a.Items.Stats(), Sessions: a.Sessions.Stats()}, loggerFromRequest(r))
}

func (a *App) handleCacheAnalytics(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, a.Items.Analytics(), loggerFromRequest(r))
}

func (a *App) handleCacheQueries(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, a.Items.QueryRecords(), loggerFromRequest(r))
}

func (a *App) handleCacheAnalyze(rw http.ResponseWriter, r *http.Request) {
	logger := loggerFromRequest(r)

	var req AnalyzeQueryRequest
	if err := restapi.DecodeRequestJSONStrict(r, &req, true); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, ErrorDomain, err, logger)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(ErrorDomain, ErrCodeInvalidQuery, "Query must not be empty."), logger)
		return
	}
	if req.ExecutionTimeMs < 0 {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(ErrorDomain, ErrCodeInvalidQuery, "Execution time must not be negative.").
				AddContext("executionTimeMs", req.ExecutionTimeMs), logger)
		return
	}

	record := a.Items.AnalyzeQuery(req.Query, time.Duration(req.ExecutionTimeMs)*time.Millisecond)
	restapi.RespondJSON(rw, record, logger)
}

func (a *App) handleGetItem(rw http.ResponseWriter, r *http.Request) {
	logger := loggerFromRequest(r)
	id := chi.URLParam(r, "id")

	item, err := a.Items.GetOrCompute(r.Context(), func() string {
		return itemKeyPrefix + id
	}, func(ctx context.Context) (Item, error) {
		return a.loadItem(ctx, id)
	}, 0)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			restapi.RespondError(rw, http.StatusNotFound,
				restapi.NewError(ErrorDomain, ErrCodeItemNotFound, "Item not found.").AddContext("id", id), logger)
			return
		}
		logger.Error("failed to get item", log.String("id", id), log.Error(err))
		restapi.RespondInternalError(rw, ErrorDomain, logger)
		return
	}
	restapi.RespondJSON(rw, item, logger)
}

func (a *App) handleLogin(rw http.ResponseWriter, r *http.Request) {
	logger := loggerFromRequest(r)

	var req LoginRequest
	if err := restapi.DecodeRequestJSONStrict(r, &req, true); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, ErrorDomain, err, logger)
		return
	}
	if req.Username == "" || req.Password == "" {
		restapi.RespondError(rw, http.StatusUnauthorized,
			restapi.NewError(ErrorDomain, ErrCodeInvalidCredentials, "Username and password are required."), logger)
		return
	}

	token := xid.New().String()
	if err := a.Sessions.SetWithTTL(token, req.Username, defaultSessionTTL); err != nil {
		logger.Error("failed to store session", log.Error(err))
		restapi.RespondInternalError(rw, ErrorDomain, logger)
		return
	}
	restapi.RespondJSON(rw, LoginResponse{Token: token, ExpiresIn: int(defaultSessionTTL / time.Second)}, logger)
}

// identityMiddleware resolves the bearer token issued by /auth/login to the user name
// and puts it into the request context, so the rate limiter keys the request by user.
func (a *App) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if ok && token != "" {
			if user, found := a.Sessions.Get(token); found {
				r = r.WithContext(middleware.NewContextWithIdentity(r.Context(), user))
			}
		}
		next.ServeHTTP(rw, r)
	})
}

func loggerFromRequest(r *http.Request) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return log.NewDisabledLogger()
}
