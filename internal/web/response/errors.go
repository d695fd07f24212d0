package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/conduit-lang/spine/pkg/mapper"
	"github.com/conduit-lang/spine/pkg/store"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RenderError renders a standard error response
func RenderError(w http.ResponseWriter, statusCode int, err error) {
	RenderErrorWithCode(w, statusCode, err, "")
}

// RenderErrorWithCode renders an error with a specific error code
func RenderErrorWithCode(w http.ResponseWriter, statusCode int, err error, code string) {
	// Generate error code from status if not provided
	if code == "" {
		code = errorCodeFromStatus(statusCode)
	}

	response := &ErrorResponse{
		Error:   "error",
		Message: err.Error(),
		Code:    code,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// RenderMappingError picks the status and code for an error raised while mapping a
// document or a resource graph
func RenderMappingError(w http.ResponseWriter, err error) {
	var httpErr *HTTPError
	switch {
	case errors.As(err, &httpErr):
		httpErr.Render(w)
	case mapper.IsMalformed(err):
		RenderErrorWithCode(w, http.StatusBadRequest, err, "malformed_document")
	case mapper.IsUnknownType(err):
		RenderErrorWithCode(w, http.StatusUnprocessableEntity, err, "unknown_resource_type")
	case mapper.IsUnsaved(err):
		RenderErrorWithCode(w, http.StatusUnprocessableEntity, err, "unsaved_related_resource")
	case errors.Is(err, store.ErrDuplicate):
		RenderErrorWithCode(w, http.StatusConflict, err, "duplicate_resource")
	default:
		RenderInternalError(w, err)
	}
}

// RenderBadRequest renders a 400 Bad Request error
func RenderBadRequest(w http.ResponseWriter, message string) {
	RenderError(w, http.StatusBadRequest, fmt.Errorf("%s", message))
}

// RenderNotFound renders a 404 Not Found error
func RenderNotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RenderError(w, http.StatusNotFound, fmt.Errorf("%s", message))
}

// RenderMethodNotAllowed renders a 405 Method Not Allowed error
func RenderMethodNotAllowed(w http.ResponseWriter, allowedMethods []string) {
	w.Header().Set("Allow", strings.Join(allowedMethods, ", "))
	RenderError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
}

// RenderConflict renders a 409 Conflict error
func RenderConflict(w http.ResponseWriter, message string) {
	RenderError(w, http.StatusConflict, fmt.Errorf("%s", message))
}

// RenderUnsupportedMediaType renders a 415 Unsupported Media Type error
func RenderUnsupportedMediaType(w http.ResponseWriter) {
	RenderError(w, http.StatusUnsupportedMediaType, fmt.Errorf("expected %s body", JSONAPIMediaType))
}

// RenderInternalError renders a 500 Internal Server Error
func RenderInternalError(w http.ResponseWriter, err error) {
	message := "Internal server error"
	if err != nil {
		message = err.Error()
	}
	RenderError(w, http.StatusInternalServerError, fmt.Errorf("%s", message))
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return "error"
	}
}

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       errorCodeFromStatus(statusCode),
	}
}

// WithCode sets a custom error code
func (e *HTTPError) WithCode(code string) *HTTPError {
	e.Code = code
	return e
}

// Render renders the HTTP error as a response
func (e *HTTPError) Render(w http.ResponseWriter) {
	RenderErrorWithCode(w, e.StatusCode, e, e.Code)
}
