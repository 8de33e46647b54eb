// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the ledger engine
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation           = "VALIDATION_ERROR"
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	CodeInvalidConversion    = "INVALID_CONVERSION"
	CodeDivisionByZero       = "DIVISION_BY_ZERO"

	// Business rule violations (422)
	CodeBusinessRule      = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"

	// Conflict (409)
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeConflict               = "CONFLICT"

	// Integrity (500, quarantines the key)
	CodeCorruptionDetected = "CORRUPTION_DETECTED"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"
)

// AppError is the standard error type for the engine.
// It implements the error interface and carries structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field names, quantities, shortfall)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewMissingRequiredField rejects a movement whose required field is unset.
// Not retryable without the caller fixing input.
func NewMissingRequiredField(field string) *AppError {
	return &AppError{
		Code:       CodeMissingRequiredField,
		Message:    fmt.Sprintf("required field %s is missing", field),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": field},
	}
}

// NewInvalidConversion signals a bad unit-conversion configuration
// (non-positive units-per-package factor).
func NewInvalidConversion(factor string) *AppError {
	return &AppError{
		Code:       CodeInvalidConversion,
		Message:    "units per package must be positive",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"units_per_package": factor},
	}
}

// NewDivisionByZero signals a cost derivation over a zero base quantity.
func NewDivisionByZero() *AppError {
	return &AppError{
		Code:       CodeDivisionByZero,
		Message:    "computed base quantity is zero",
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientStock creates a stock shortage error.
// Shortfall is the quantity that could not be covered by available lots;
// callers recover by reducing the request or receiving more stock.
func NewInsufficientStock(productID string, requested, available, shortfall string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id": productID,
			"requested":  requested,
			"available":  available,
			"shortfall":  shortfall,
		},
	}
}

// NewConcurrentModification signals that a balance changed between
// selection and commit. Callers recover by re-running the operation.
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Balance was modified by a concurrent writer. Retry the operation.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewCorruptionDetected signals that a full replay disagrees with the
// maintained balance. The key is quarantined; never auto-corrected.
func NewCorruptionDetected(key string, replayed, stored string) *AppError {
	return &AppError{
		Code:       CodeCorruptionDetected,
		Message:    "Ledger replay disagrees with the stored balance; key quarantined",
		HTTPStatus: http.StatusInternalServerError,
		Details: map[string]any{
			"key":      key,
			"replayed": replayed,
			"stored":   stored,
		},
	}
}

// NewKeyQuarantined rejects a mutation against a quarantined key.
func NewKeyQuarantined(key string) *AppError {
	return &AppError{
		Code:       CodeCorruptionDetected,
		Message:    "Balance key is quarantined pending manual reconciliation",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"key":         key,
			"quarantined": true,
		},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsCode checks if error carries the given code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsInsufficientStock checks if error is CodeInsufficientStock
func IsInsufficientStock(err error) bool {
	return IsCode(err, CodeInsufficientStock)
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return IsCode(err, CodeConcurrentModification)
}

// IsCorruptionDetected checks if error is CodeCorruptionDetected
func IsCorruptionDetected(err error) bool {
	return IsCode(err, CodeCorruptionDetected)
}
