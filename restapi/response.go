/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/acronis/go-reqguard/log"
)

// ContentTypeAppJSON is the media type of every response body written by this package.
const ContentTypeAppJSON = "application/json"

// ErrorResponseData wraps Error into the {"error": ...} envelope.
type ErrorResponseData struct {
	Err *Error `json:"error"`
}

func (e *ErrorResponseData) Error() string {
	return fmt.Sprintf("HTTP error occurs: %v", e.Err)
}

// RespondJSON is RespondCodeAndJSON with 200 status.
func RespondJSON(rw http.ResponseWriter, respData interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, respData, logger)
}

// RespondCodeAndJSON writes statusCode and respData encoded as JSON (HTML characters are not escaped).
// Content-Type is set to application/json unless the handler has set it already.
// A nil respData writes the status only.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}

	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(respData); err != nil {
		logger.Error("error while marshaling json for response body", log.Error(err))
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(statusCode)
	if _, err := rw.Write(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})); err != nil {
		logger.Error("error while writing response body", log.Error(err))
	}
}

// RespondError logs apiErr, counts it in the response errors metric and writes it with httpStatusCode.
func RespondError(rw http.ResponseWriter, httpStatusCode int, apiErr *Error, logger log.FieldLogger) {
	if logger != nil {
		logger.Error("error in response", errorLogFields(apiErr)...)
	}
	if m := loadResponseErrorsMetrics(); m != nil {
		m.WithLabelValues(apiErr.Domain, apiErr.Code).Inc()
	}
	RespondCodeAndJSON(rw, httpStatusCode, ErrorResponseData{apiErr}, logger)
}

func errorLogFields(apiErr *Error) []log.Field {
	fields := []log.Field{log.String("error_code", apiErr.Code), log.String("error_message", apiErr.Message)}
	if len(apiErr.Context) == 0 {
		return fields
	}
	ctx := make([]string, 0, len(apiErr.Context))
	for k, v := range apiErr.Context {
		ctx = append(ctx, fmt.Sprintf("%s: %v", k, v))
	}
	sort.Strings(ctx)
	return append(fields, log.Strings("error_context", ctx))
}

func RespondInternalError(rw http.ResponseWriter, domain string, logger log.FieldLogger) {
	RespondError(rw, http.StatusInternalServerError, NewInternalError(domain), logger)
}

func RespondMalformedRequestError(rw http.ResponseWriter, domain string, reqErr *MalformedRequestError, logger log.FieldLogger) {
	apiErr := NewError(domain, httpCode2ErrorCode(reqErr.HTTPStatusCode), reqErr.Message)
	RespondError(rw, reqErr.HTTPStatusCode, apiErr, logger)
}

// RespondMalformedRequestOrInternalError answers with the MalformedRequestError found in err's chain,
// otherwise logs err and answers with 500.
func RespondMalformedRequestOrInternalError(rw http.ResponseWriter, domain string, err error, logger log.FieldLogger) {
	var reqErr *MalformedRequestError
	if errors.As(err, &reqErr) {
		RespondMalformedRequestError(rw, domain, reqErr, logger)
		return
	}
	if logger != nil {
		logger.Error("request handling failed", log.Error(err))
	}
	RespondInternalError(rw, domain, logger)
}
