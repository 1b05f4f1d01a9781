// Package http serves the expenses JSON API.
//
// This file holds the response builder and the mapping from domain errors
// to status codes, so every handler answers with the same JSON shapes.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/uistate"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response. A nil body writes no content.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	data, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"encode response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(data, '\n'))
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(ErrorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// InvalidQueryError is a 400 naming each offending query parameter.
func InvalidQueryError(fields core.ValidationErrors) *ResponseBuilder {
	return NewResponse().
		Status(http.StatusBadRequest).
		JSON(ErrorBody{Error: "invalid query", Fields: fields.Fields()})
}

// ValidationError creates a 422 carrying one message per field.
func ValidationError(fields core.ValidationErrors) *ResponseBuilder {
	return NewResponse().
		Status(http.StatusUnprocessableEntity).
		JSON(ErrorBody{Error: core.ErrValidation.Error(), Fields: fields.Fields()})
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// FromError maps a service error onto a response. Unknown errors become a
// 500 with a generic message. Context errors win over the store error that
// wraps them.
func FromError(err error) *ResponseBuilder {
	var verrs core.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return ValidationError(verrs)
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError(core.ErrNotFound.Error())
	case errors.Is(err, uistate.ErrInvalidAction):
		return BadRequestError(err.Error())
	case isCancellation(err):
		return ErrorResponse(http.StatusServiceUnavailable, "request cancelled")
	case errors.Is(err, core.ErrStoreUnavailable):
		return ErrorResponse(http.StatusServiceUnavailable, core.ErrStoreUnavailable.Error())
	}
	return InternalServerError("internal error")
}

// writeError logs server-side failures and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := FromError(err)
	ctx := r.Context()
	fields := log.NewFields().WithOperation(op).WithError(err).ToSlice()
	switch {
	case isCancellation(err):
		log.FromContext(ctx).DebugContext(ctx, "Request cancelled", fields...)
	case resp.statusCode >= http.StatusInternalServerError:
		log.FromContext(ctx).ErrorContext(ctx, "Request failed", fields...)
	default:
		log.FromContext(ctx).DebugContext(ctx, "Request rejected", fields...)
	}
	resp.Write(w)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
