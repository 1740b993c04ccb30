/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"code.cloudfoundry.org/bytefmt"
)

// MalformedRequestError describes a client mistake in the request. It is answered with HTTPStatusCode
// and an error code derived from it.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

func (e *MalformedRequestError) Error() string {
	return e.Message
}

func badRequest(format string, args ...interface{}) *MalformedRequestError {
	return &MalformedRequestError{http.StatusBadRequest, fmt.Sprintf(format, args...)}
}

func unsupportedMediaType(format string, args ...interface{}) *MalformedRequestError {
	return &MalformedRequestError{http.StatusUnsupportedMediaType, fmt.Sprintf(format, args...)}
}

// NewTooLargeMalformedRequestError is returned when the request body exceeds maxSizeBytes.
func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return &MalformedRequestError{
		http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Request body must not be larger than %s.", bytefmt.ByteSize(maxSizeBytes)),
	}
}

// SetRequestMaxBodySize wraps the request body with http.MaxBytesReader.
// DecodeRequestJSON reports exceeding the limit as a 413 MalformedRequestError.
func SetRequestMaxBodySize(w http.ResponseWriter, r *http.Request, maxSizeBytes uint64) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxSizeBytes)) //nolint:gosec // maxSizeBytes is a reasonable value
}

// DecodeRequestJSON decodes the request body into dst, unknown fields are ignored.
func DecodeRequestJSON(r *http.Request, dst interface{}) error {
	return DecodeRequestJSONStrict(r, dst, false)
}

// DecodeRequestJSONStrict decodes the request body into dst. The body must hold exactly one JSON value
// and the Content-Type, if present, must be application/json.
func DecodeRequestJSONStrict(r *http.Request, dst interface{}, disallowUnknownFields bool) error {
	if err := checkJSONContentType(r.Header.Get("Content-Type")); err != nil {
		return err
	}

	dec := json.NewDecoder(r.Body)
	if disallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		return convertDecodeErr(err)
	}
	if dec.More() {
		return badRequest("Request body must only contain a single JSON object.")
	}
	return nil
}

func checkJSONContentType(header string) error {
	if header == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return unsupportedMediaType("failed to parse Content-Type header for request: %s", err)
	}
	if mediaType != ContentTypeAppJSON {
		return unsupportedMediaType("Content-Type %q is not supported.", mediaType)
	}
	return nil
}

func convertDecodeErr(err error) error {
	var (
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		maxBytesErr *http.MaxBytesError
	)
	switch {
	case errors.Is(err, io.EOF):
		return badRequest("Request body must not be empty.")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return badRequest("Request body contains badly-formed JSON.")
	case errors.As(err, &syntaxErr):
		return badRequest("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset)
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return badRequest("Request body contains an invalid value for the %q field (at position %d).",
			typeErr.Field, typeErr.Offset)
	case errors.As(err, &typeErr):
		return badRequest("Request body contains an invalid value of type %q for the field of type %s.",
			typeErr.Value, typeErr.Type)
	case errors.As(err, &maxBytesErr):
		return NewTooLargeMalformedRequestError(uint64(maxBytesErr.Limit)) //nolint:gosec // limit is never negative
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return badRequest("Payload does not match the scheme.")
	default:
		return err
	}
}
