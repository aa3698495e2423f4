// Package httputil writes JSON responses and translates domain error codes
// into HTTP statuses.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "referral/pkg/domain-errors"
)

// ErrorResponse is the JSON body for every error reply.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:           http.StatusBadRequest,
	dErrors.CodeInvalidInput:         http.StatusBadRequest,
	dErrors.CodeValidation:           http.StatusBadRequest,
	dErrors.CodeInvariantViolation:   http.StatusBadRequest,
	dErrors.CodeUnauthorized:         http.StatusUnauthorized,
	dErrors.CodeForbidden:            http.StatusForbidden,
	dErrors.CodeNotFound:             http.StatusNotFound,
	dErrors.CodeReferralCodeNotFound: http.StatusNotFound,
	dErrors.CodeConflict:             http.StatusConflict,
	dErrors.CodeAlreadyLinked:        http.StatusConflict,
	dErrors.CodeSelfReferral:         http.StatusUnprocessableEntity,
	dErrors.CodeTimeout:              http.StatusGatewayTimeout,
	dErrors.CodeUnavailable:          http.StatusServiceUnavailable,
	dErrors.CodeExhaustedRetries:     http.StatusServiceUnavailable,
	dErrors.CodeInternal:             http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for a domain error code.
func StatusFor(code dErrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError writes err as a JSON error body. Errors without a domain code
// are reported as internal errors. Internal error details never leave the process.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	description := ""
	var de *dErrors.Error
	if errors.As(err, &de) {
		code = de.Code
		description = de.Message
	}
	if code == dErrors.CodeInternal {
		description = ""
	}
	WriteJSON(w, StatusFor(code), ErrorResponse{Error: string(code), ErrorDescription: description})
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON decodes a request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}
