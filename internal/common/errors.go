package common

import "net/http"

// AppError carries a machine-readable code and HTTP status alongside the cause.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ErrNotFound builds a 404 AppError for the named resource.
func ErrNotFound(resource string) *AppError {
	return NewAppError("NOT_FOUND", resource+" not found", http.StatusNotFound, nil)
}

// ErrValidation builds a 400 AppError carrying field-level details.
func ErrValidation(details any) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: "validation failed", HTTPStatus: http.StatusBadRequest, Details: details}
}
