package core

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// AppError represents an application error
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodePersistence   = "PERSISTENCE_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
)

// Common error constructors
func NewValidationError(message string, err error) *AppError {
	return NewAppError(ErrCodeValidation, message, err)
}

func NewNotFoundError(message string, err error) *AppError {
	return NewAppError(ErrCodeNotFound, message, err)
}

func NewInternalError(message string, err error) *AppError {
	return NewAppError(ErrCodeInternal, message, err)
}

func NewPersistenceError(message string, err error) *AppError {
	return NewAppError(ErrCodePersistence, message, err)
}

func NewConfigurationError(message string, err error) *AppError {
	return NewAppError(ErrCodeConfiguration, message, err)
}

// ErrorResponse represents an error response for API endpoints
type ErrorResponse struct {
	Error   *AppError `json:"error"`
	Success bool      `json:"success"`
}

// WriteErrorResponse writes an error response to an HTTP response writer
func WriteErrorResponse(w http.ResponseWriter, statusCode int, appErr *AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := &ErrorResponse{Error: appErr, Success: false}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// GetHTTPStatusCode returns the appropriate HTTP status code for an error
func GetHTTPStatusCode(err *AppError) int {
	switch err.Code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInternal, ErrCodePersistence, ErrCodeConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// HandleError handles an error and writes an appropriate HTTP response
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if e, ok := err.(*AppError); ok {
		appErr = e
	} else {
		appErr = NewInternalError("An unexpected error occurred", err)
	}

	WriteErrorResponse(w, GetHTTPStatusCode(appErr), appErr)
}
