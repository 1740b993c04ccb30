/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"sync"

	"github.com/acronis/go-reqguard/log"
)

// LoggingParams stores fields for the final log entry of the Logging middleware
// that may be added dynamically by the underlying middlewares and handlers.
type LoggingParams struct {
	mu     sync.Mutex
	fields []log.Field
}

// ExtendFields extends list of fields that will be logged by the Logging middleware.
func (lp *LoggingParams) ExtendFields(fields ...log.Field) {
	lp.mu.Lock()
	lp.fields = append(lp.fields, fields...)
	lp.mu.Unlock()
}

// Fields returns a copy of the collected fields.
func (lp *LoggingParams) Fields() []log.Field {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return append([]log.Field(nil), lp.fields...)
}
