// Package api exposes the upload-and-scrape form over HTTP and websockets.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sheetscrape/console/internal/controller"
	"github.com/sheetscrape/console/internal/session"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// sentinelStatus maps the form and session errors handlers may return as-is.
var sentinelStatus = []struct {
	err    error
	status int
	code   string
}{
	{controller.ErrBusy, http.StatusConflict, "CONFLICT"},
	{session.ErrSessionBusy, http.StatusConflict, "CONFLICT"},
	{session.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{session.ErrTooManySessions, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	{controller.ErrInvalidFormat, http.StatusBadRequest, "INVALID_FORMAT"},
	{controller.ErrNoFile, http.StatusBadRequest, "NO_FILE"},
}

// fromSentinel converts a known domain error, however deeply wrapped, to an APIError.
func fromSentinel(err error) (*APIError, bool) {
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			return &APIError{Status: s.status, Code: s.code, Message: err.Error()}, true
		}
	}
	return nil, false
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError

	switch e := err.(type) {
	case *APIError:
		apiErr = e
	case *echo.HTTPError:
		apiErr = &APIError{
			Status:  e.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", e.Message),
		}
	default:
		var ok bool
		if apiErr, ok = fromSentinel(err); !ok {
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "UNKNOWN_ERROR",
				Message: "An unexpected error occurred",
				Details: err.Error(),
			}
		}
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}
