package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Conflict
	ErrCodeConflict            ErrorCode = "CONFLICT"
	ErrCodeAlreadyExists       ErrorCode = "ALREADY_EXISTS"
	ErrCodeDuplicateAccount    ErrorCode = "DUPLICATE_ACCOUNT"
	ErrCodeDuplicateEnrollment ErrorCode = "DUPLICATE_ENROLLMENT"
	ErrCodeSlotOccupied        ErrorCode = "SLOT_OCCUPIED"
	ErrCodeAlreadyEnrolled     ErrorCode = "ALREADY_ENROLLED"
	ErrCodeInvalidState        ErrorCode = "INVALID_STATE"

	// Transient hazards recover on their own
	ErrCodeWrongCard ErrorCode = "WRONG_CARD"

	// Multi-step writes that partially failed
	ErrCodeSideEffect ErrorCode = "SIDE_EFFECT_FAILED"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
	ErrCodeStorage     ErrorCode = "STORAGE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func AlreadyExists(resource string) *AppError {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("%s already exists", resource))
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func DuplicateAccount(accountID string) *AppError {
	return New(ErrCodeDuplicateAccount, fmt.Sprintf("Account %s is already registered to another card", accountID))
}

func DuplicateEnrollment(subject string) *AppError {
	return New(ErrCodeDuplicateEnrollment, fmt.Sprintf("Card is already enrolled in %s", subject))
}

func SlotOccupied(day int, start string) *AppError {
	return New(ErrCodeSlotOccupied, fmt.Sprintf("Time slot day %d at %s is already taken", day, start))
}

func AlreadyEnrolled() *AppError {
	return New(ErrCodeAlreadyEnrolled, "Card is already registered")
}

func InvalidState(message string) *AppError {
	return New(ErrCodeInvalidState, message)
}

func WrongCard(credential string) *AppError {
	return New(ErrCodeWrongCard, "A different card is awaiting self-registration").
		WithDetails(map[string]string{"credential": credential})
}

func SideEffectFailed(step string, cause error) *AppError {
	return Wrap(ErrCodeSideEffect, fmt.Sprintf("Failed to record %s", step), cause)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Unavailable(message string) *AppError {
	return New(ErrCodeUnavailable, message)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Storage(cause error) *AppError {
	return Wrap(ErrCodeStorage, "Storage error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// IsTransient reports whether err clears on its own without caller action.
func IsTransient(err error) bool {
	return HasCode(err, ErrCodeWrongCard)
}
