// Package constants defines system-wide constants for the key management service.
package constants

import "time"

// ErrorCode identifies the category of a CBCError.
type ErrorCode string

const (
	// ErrCodeInvalidApplication indicates the requested application scope is unknown or disabled.
	ErrCodeInvalidApplication ErrorCode = "invalid_application"

	// ErrCodeNoUniqueAlias indicates more than one alias matched a lookup that requires uniqueness,
	// or that a resolved alias has no backing material.
	ErrCodeNoUniqueAlias ErrorCode = "no_unique_alias"

	// ErrCodeNoCurrentKey indicates no usable alias exists and the operation is not allowed to mint one.
	ErrCodeNoCurrentKey ErrorCode = "no_current_key"

	// ErrCodePolicyConflict indicates the resolved policy window is internally inconsistent.
	ErrCodePolicyConflict ErrorCode = "policy_conflict"

	// ErrCodeCertInvalid indicates a certificate could not be parsed or has failed validation.
	ErrCodeCertInvalid ErrorCode = "cert_invalid"

	// ErrCodeCryptoFailure indicates a cryptographic operation (wrap, sign, encrypt, verify) failed.
	ErrCodeCryptoFailure ErrorCode = "crypto_failure"

	// ErrCodeStoreFailure indicates a persistence backend returned an unexpected error.
	ErrCodeStoreFailure ErrorCode = "store_failure"

	// ErrCodeTimeout indicates an operation did not complete before its deadline.
	ErrCodeTimeout ErrorCode = "timeout"

	// ErrCodeInternal is a catch-all for errors that do not map to a defined kind.
	ErrCodeInternal ErrorCode = "internal_error"
)

// LogLevel represents the severity level of log messages.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// ContextKey represents keys used in context.Context.
type ContextKey string

const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeyTraceID   ContextKey = "trace_id"
	ContextKeyLogger    ContextKey = "logger"
	ContextKeyAppID     ContextKey = "application_id"
)

// AuditEventType represents the key lifecycle events recorded to the registry.
type AuditEventType string

const (
	AuditEventKeyMinted    AuditEventType = "key_minted"
	AuditEventKeyWrapped   AuditEventType = "key_wrapped"
	AuditEventKeyUnwrapped AuditEventType = "key_unwrapped"
	AuditEventKeySigned    AuditEventType = "key_signed"
	AuditEventKeyVerified  AuditEventType = "key_verified"
	AuditEventKeyEncrypted AuditEventType = "key_encrypted"
	AuditEventKeyDecrypted AuditEventType = "key_decrypted"
	AuditEventKeyAccessed  AuditEventType = "key_accessed"
	AuditEventKeyExpired   AuditEventType = "key_expired"
)

// KeyAlgorithm enumerates the asymmetric algorithms this service can mint.
type KeyAlgorithm string

const (
	AlgorithmRSA2048 KeyAlgorithm = "RSA-2048"
	AlgorithmRSA4096 KeyAlgorithm = "RSA-4096"
)

// ISO8601Layout is the timestamp format used on every externally visible
// key alias, policy and audit record.
const ISO8601Layout = "2006-01-02T15:04:05.000Z"

// Default timing parameters, overridable via configuration.
const (
	DefaultResolveTimeout = 5 * time.Second
	DefaultValidityDays   = 365
	DefaultOverlapWindow  = 90 * 24 * time.Hour
	DefaultCacheTTL       = 10 * time.Minute
)
