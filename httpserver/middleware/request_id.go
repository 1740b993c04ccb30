/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"
)

const (
	headerRequestID         = "X-Request-ID"
	headerInternalRequestID = "X-Int-Request-ID"
)

// RequestIDMaxLen limits X-Request-ID accepted from the client, longer values are regenerated.
const RequestIDMaxLen = 128

// RequestIDOpts overrides id generators (xid by default).
type RequestIDOpts struct {
	GenerateID         func() string
	GenerateInternalID func() string
}

type requestIDHandler struct {
	next http.Handler
	opts RequestIDOpts
}

func newXID() string { return xid.New().String() }

// RequestID keeps the client's X-Request-ID (or generates one) and always generates X-Int-Request-ID.
// Both are stored in the request context and echoed in the response headers.
func RequestID() func(next http.Handler) http.Handler {
	return RequestIDWithOpts(RequestIDOpts{})
}

func RequestIDWithOpts(opts RequestIDOpts) func(next http.Handler) http.Handler {
	for _, gen := range []*func() string{&opts.GenerateID, &opts.GenerateInternalID} {
		if *gen == nil {
			*gen = newXID
		}
	}
	return func(next http.Handler) http.Handler {
		return &requestIDHandler{next: next, opts: opts}
	}
}

func (h *requestIDHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get(headerRequestID)
	if reqID == "" || len(reqID) > RequestIDMaxLen {
		reqID = h.opts.GenerateID()
	}
	intReqID := h.opts.GenerateInternalID()

	rw.Header().Set(headerRequestID, reqID)
	rw.Header().Set(headerInternalRequestID, intReqID)

	ctx := NewContextWithInternalRequestID(NewContextWithRequestID(r.Context(), reqID), intReqID)
	h.next.ServeHTTP(rw, r.WithContext(ctx))
}
