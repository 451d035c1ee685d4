// Package errors defines the structured error type used across the key
// management service and constructors for each of its defined error kinds.
package errors

import (
	"fmt"
	"net/http"

	"github.com/turtacn/ckms/pkg/constants"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// CBCError represents a structured error with additional metadata.
type CBCError interface {
	error

	// Code returns the error kind.
	Code() constants.ErrorCode

	// HTTPStatus returns the HTTP status an API surface would map this to.
	HTTPStatus() int

	// Description returns a human-readable description of the error kind.
	Description() string

	// Unwrap returns the underlying error for error chain support.
	Unwrap() error

	// WithCause adds a cause error to the error chain.
	WithCause(cause error) CBCError

	// WithMetadata adds additional context metadata.
	WithMetadata(key string, value interface{}) CBCError

	// Metadata returns all metadata.
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

type baseError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

func (e *baseError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.description
}

func (e *baseError) Code() constants.ErrorCode { return e.code }
func (e *baseError) HTTPStatus() int           { return e.httpStatus }
func (e *baseError) Description() string       { return e.description }
func (e *baseError) Unwrap() error             { return e.cause }

func (e *baseError) WithCause(cause error) CBCError {
	e.cause = cause
	return e
}

func (e *baseError) WithMetadata(key string, value interface{}) CBCError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} { return e.metadata }

// NewError creates a new CBCError with the specified parameters.
func NewError(code constants.ErrorCode, httpStatus int, description string, message string) CBCError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Error Kind Constructors
// ================================================================================

// ErrInvalidApplication creates an invalid_application error.
func ErrInvalidApplication(appID string) CBCError {
	return NewError(
		constants.ErrCodeInvalidApplication,
		http.StatusBadRequest,
		"The requested application scope is unknown or disabled.",
		fmt.Sprintf("invalid application: %s", appID),
	).WithMetadata("application_id", appID)
}

// ErrNoUniqueAlias creates a no_unique_alias error.
func ErrNoUniqueAlias(appID, refID string, count int) CBCError {
	return NewError(
		constants.ErrCodeNoUniqueAlias,
		http.StatusConflict,
		"More than one alias matched a lookup that requires a single current key.",
		fmt.Sprintf("found %d candidate aliases for application=%s reference=%s", count, appID, refID),
	).WithMetadata("application_id", appID).WithMetadata("reference_id", refID).WithMetadata("count", count)
}

// ErrNoCurrentKey creates a no_current_key error.
func ErrNoCurrentKey(appID, refID string) CBCError {
	return NewError(
		constants.ErrCodeNoCurrentKey,
		http.StatusNotFound,
		"No usable key alias exists and this operation is not permitted to mint one.",
		fmt.Sprintf("no current key for application=%s reference=%s", appID, refID),
	).WithMetadata("application_id", appID).WithMetadata("reference_id", refID)
}

// ErrPolicyConflict creates a policy_conflict error.
func ErrPolicyConflict(appID, reason string) CBCError {
	return NewError(
		constants.ErrCodePolicyConflict,
		http.StatusConflict,
		"The resolved expiry policy window is internally inconsistent.",
		fmt.Sprintf("policy conflict for application=%s: %s", appID, reason),
	).WithMetadata("application_id", appID).WithMetadata("reason", reason)
}

// ErrCertInvalid creates a cert_invalid error.
func ErrCertInvalid(alias, reason string) CBCError {
	return NewError(
		constants.ErrCodeCertInvalid,
		http.StatusBadRequest,
		"The certificate could not be parsed or failed validation.",
		fmt.Sprintf("invalid certificate for alias=%s: %s", alias, reason),
	).WithMetadata("alias", alias).WithMetadata("reason", reason)
}

// ErrCryptoFailure creates a crypto_failure error.
func ErrCryptoFailure(operation string, cause error) CBCError {
	e := NewError(
		constants.ErrCodeCryptoFailure,
		http.StatusInternalServerError,
		"A cryptographic operation failed.",
		fmt.Sprintf("crypto operation %q failed", operation),
	).WithMetadata("operation", operation)
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}

// ErrStoreFailure creates a store_failure error.
func ErrStoreFailure(store string, cause error) CBCError {
	e := NewError(
		constants.ErrCodeStoreFailure,
		http.StatusInternalServerError,
		"A persistence backend returned an unexpected error.",
		fmt.Sprintf("store %q failed", store),
	).WithMetadata("store", store)
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}

// ErrTimeout creates a timeout error.
func ErrTimeout(operation string) CBCError {
	return NewError(
		constants.ErrCodeTimeout,
		http.StatusGatewayTimeout,
		"The operation did not complete before its deadline.",
		fmt.Sprintf("operation %q timed out", operation),
	).WithMetadata("operation", operation)
}

// ================================================================================
// Error Utilities
// ================================================================================

// IsCBCError checks if an error is a CBCError.
func IsCBCError(err error) bool {
	_, ok := err.(CBCError)
	return ok
}

// AsCBCError attempts to cast an error to CBCError.
func AsCBCError(err error) (CBCError, bool) {
	cbcErr, ok := err.(CBCError)
	return cbcErr, ok
}

// WrapError wraps a generic error into a CBCError of the given kind.
func WrapError(err error, code constants.ErrorCode, message string) CBCError {
	httpStatus := http.StatusInternalServerError
	switch code {
	case constants.ErrCodeInvalidApplication, constants.ErrCodeCertInvalid:
		httpStatus = http.StatusBadRequest
	case constants.ErrCodeNoUniqueAlias, constants.ErrCodePolicyConflict:
		httpStatus = http.StatusConflict
	case constants.ErrCodeNoCurrentKey:
		httpStatus = http.StatusNotFound
	case constants.ErrCodeTimeout:
		httpStatus = http.StatusGatewayTimeout
	}
	return NewError(code, httpStatus, err.Error(), message).WithCause(err)
}

// CodeOf returns the error kind of err, or ErrCodeInternal if err is not a CBCError.
func CodeOf(err error) constants.ErrorCode {
	if cbcErr, ok := AsCBCError(err); ok {
		return cbcErr.Code()
	}
	return constants.ErrCodeInternal
}

// IsTransientError checks if an error is transient and can be retried.
func IsTransientError(err error) bool {
	code := CodeOf(err)
	return code == constants.ErrCodeTimeout || code == constants.ErrCodeStoreFailure
}

// ShouldLogError determines if an error should be logged based on severity.
func ShouldLogError(err error) bool {
	if cbcErr, ok := AsCBCError(err); ok {
		return cbcErr.HTTPStatus() >= 500
	}
	return true
}
