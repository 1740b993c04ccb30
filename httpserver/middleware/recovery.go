/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/acronis/go-reqguard/log"
	"github.com/acronis/go-reqguard/restapi"
)

// RecoveryDefaultStackSize is the number of stack trace bytes logged for a panic.
const RecoveryDefaultStackSize = 8192

// RecoveryOpts represents an options for Recovery middleware.
type RecoveryOpts struct {
	StackSize int
}

type recoveryHandler struct {
	next        http.Handler
	errorDomain string
	opts        RecoveryOpts
}

// Recovery turns a panic in the handler into a 500 response and logs it with the stack trace.
func Recovery(errDomain string) func(next http.Handler) http.Handler {
	return RecoveryWithOpts(errDomain, RecoveryOpts{StackSize: RecoveryDefaultStackSize})
}

func RecoveryWithOpts(errDomain string, opts RecoveryOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &recoveryHandler{next: next, errorDomain: errDomain, opts: opts}
	}
}

func (h *recoveryHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		logger := GetLoggerFromContext(r.Context())
		if logger == nil {
			logger = log.NewDisabledLogger()
		}
		// http.Server suppresses the stack trace of this sentinel, so it is re-raised as is.
		if p == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
			logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
			panic(p)
		}
		logger.Error(fmt.Sprintf("Panic: %+v", p), h.stackFields()...)
		restapi.RespondInternalError(rw, h.errorDomain, logger)
	}()

	h.next.ServeHTTP(rw, r)
}

func (h *recoveryHandler) stackFields() []log.Field {
	if h.opts.StackSize <= 0 {
		return nil
	}
	stack := make([]byte, h.opts.StackSize)
	return []log.Field{log.Bytes("stack", stack[:runtime.Stack(stack, false)])}
}
