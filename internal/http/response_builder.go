// Package http serves the ledger, analytics, insights, query and goal
// operations as a JSON API.
//
// This file implements the builder used by every handler to write JSON
// responses and the shared error envelope.
package http

import (
	"encoding/json"
	"net/http"

	"fintrack/internal/log"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
	raw        []byte
}

// ErrorBody is the envelope for every non-2xx JSON response.
type ErrorBody struct {
	Error string `json:"error"`
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets v as the body, encoded when the response is written.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.headers["Content-Type"] = "application/json; charset=utf-8"
	b.payload = v
	b.raw = nil
	return b
}

// Raw sets a pre-encoded body with its content type.
func (b *ResponseBuilder) Raw(contentType string, body []byte) *ResponseBuilder {
	b.headers["Content-Type"] = contentType
	b.raw = body
	b.payload = nil
	return b
}

// Attachment asks clients to save the body as filename.
func (b *ResponseBuilder) Attachment(filename string) *ResponseBuilder {
	return b.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	body := b.raw
	if b.payload != nil {
		encoded, err := json.Marshal(b.payload)
		if err != nil {
			log.Default().WithComponent(log.ComponentHTTP).Error("Failed to encode response", log.FieldError, err)
			b = ErrorResponse(http.StatusInternalServerError, "Internal server error")
			encoded, _ = json.Marshal(b.payload)
		}
		body = append(encoded, '\n')
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(b.statusCode)
	if len(body) > 0 && b.statusCode != http.StatusNoContent {
		_, _ = w.Write(body)
	}
}

// ErrorResponse creates a standard {"error": message} response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(ErrorBody{Error: message})
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func ConflictError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusConflict, message)
}

// NoContent is the reply to a successful delete.
func NoContent() *ResponseBuilder {
	return NewResponse().Status(http.StatusNoContent)
}
