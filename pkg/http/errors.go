package http

import (
	"fmt"
	"net/http"
)

// Error codes carried in AppError.Code.
const (
	CodeValidation  = "ERR_VALIDATION"
	CodeNotFound    = "ERR_NOT_FOUND"
	CodeConflict    = "ERR_CONFLICT"
	CodeRateLimited = "ERR_RATE_LIMITED"
	CodeUnavailable = "ERR_UNAVAILABLE"
	CodeInternal    = "ERR_INTERNAL"
)

// AppError is an error with the HTTP status it maps to. Err stays server-side.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithError attaches the cause for logging.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

// Invalidf is a 400 pinned to one request field.
func Invalidf(field, format string, a ...interface{}) *AppError {
	return NewAppError(CodeValidation, field, fmt.Sprintf(format, a...), http.StatusBadRequest)
}

func NotFound(message string) *AppError {
	return NewAppError(CodeNotFound, "", message, http.StatusNotFound)
}

func Conflict(message string) *AppError {
	return NewAppError(CodeConflict, "", message, http.StatusConflict)
}

func TooManyRequests(message string) *AppError {
	return NewAppError(CodeRateLimited, "", message, http.StatusTooManyRequests)
}

func Unavailable(message string) *AppError {
	return NewAppError(CodeUnavailable, "", message, http.StatusServiceUnavailable)
}

func Internal(message string) *AppError {
	return NewAppError(CodeInternal, "", message, http.StatusInternalServerError)
}
