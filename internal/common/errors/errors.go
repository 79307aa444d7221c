package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures crossing the HTTP boundary. Business
// outcomes (already joined, too early, ...) are not errors and never get
// a code; these cover infrastructure and request-level failures only.
type ErrorCode string

const (
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeDatabase     ErrorCode = "DATABASE_ERROR"
	ErrCodeConflict     ErrorCode = "CONFLICT"
)

// AppError is a typed error carried from services to the delivery layer.
type AppError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches structured context for the JSON error body.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// AsAppError unwraps err into an AppError, defaulting to an internal error
// so the delivery layer never leaks raw infrastructure messages.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(ErrCodeInternal, "internal error", err)
}

// HTTPStatus maps an error code to a response status.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeValidation:
		return 400
	case ErrCodeUnauthorized:
		return 401
	case ErrCodeForbidden:
		return 403
	case ErrCodeNotFound:
		return 404
	case ErrCodeConflict:
		return 409
	default:
		return 500
	}
}
