// Package http exposes the ledger, recurrence, dashboard and payment
// operations as a JSON API.
//
// This file holds the fluent JSON response builder and the mapping from
// domain errors to status codes.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"cajaclaro/internal/auth"
	"cajaclaro/internal/core"
	"cajaclaro/internal/importer"
	applog "cajaclaro/internal/log"
	"cajaclaro/internal/payments"
	"cajaclaro/internal/services"
	"cajaclaro/internal/storage"
)

// retryAfterSeconds is suggested to clients on retryable failures.
const retryAfterSeconds = 1

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

// NewJSONResponse creates a builder with a default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response. A nil payload writes no body.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.payload)
}

// errorBody is the envelope of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Row     int    `json:"row,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Data(errorBody{Error: errorDetail{Code: code, Message: message}})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "bad_request", message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, "not_found", message)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal", "internal error")
}

// ErrorFor maps a service error to its response.
func ErrorFor(err error) *JSONResponseBuilder {
	var (
		validation *core.ValidationError
		importErr  *services.ImportError
		rowErr     *importer.RowError
		tooLarge   *http.MaxBytesError
	)

	switch {
	case errors.As(err, &tooLarge):
		return ErrorResponse(http.StatusRequestEntityTooLarge, "too_large",
			"request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")

	case errors.As(err, &importErr), errors.As(err, &rowErr):
		row := 0
		if importErr != nil {
			row = importErr.Row
		} else {
			row = rowErr.Row
		}
		b := ErrorResponse(http.StatusUnprocessableEntity, "invalid_row", err.Error())
		detail := b.payload.(errorBody)
		detail.Error.Row = row
		if errors.As(err, &validation) {
			detail.Error.Field = validation.Field
		}
		return b.Data(detail)

	case errors.As(err, &validation):
		b := ErrorResponse(http.StatusUnprocessableEntity, "validation", validation.Error())
		detail := b.payload.(errorBody)
		detail.Error.Field = validation.Field
		return b.Data(detail)

	case errors.Is(err, core.ErrValidation):
		return ErrorResponse(http.StatusUnprocessableEntity, "validation", err.Error())

	case errors.Is(err, storage.ErrNotFound):
		return NotFoundError("not found")

	case errors.Is(err, storage.ErrConflict):
		return ErrorResponse(http.StatusConflict, "conflict", "already exists")

	case core.IsRetryable(err):
		return ErrorResponse(http.StatusServiceUnavailable, "retry", "temporarily unavailable, retry").
			Header("Retry-After", strconv.Itoa(retryAfterSeconds))

	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, payments.ErrInvalidSignature):
		return ErrorResponse(http.StatusUnauthorized, "unauthorized", "invalid credentials")

	case errors.Is(err, payments.ErrMalformed):
		return BadRequestError(err.Error())

	case errors.Is(err, payments.ErrUnknownGateway):
		return NotFoundError("unknown gateway")

	default:
		return InternalServerError()
	}
}

// writeError logs server-side failures and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	b := ErrorFor(err)
	if b.statusCode >= http.StatusInternalServerError {
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, operation, nil)
	}
	b.Write(w)
}
