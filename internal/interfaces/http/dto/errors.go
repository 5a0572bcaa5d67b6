package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Ingestion error codes
const (
	// ErrCodeSignatureInvalid is used when webhook signature verification fails
	ErrCodeSignatureInvalid = "ERR_SIGNATURE_INVALID"
	// ErrCodeUnknownTenant is used when no tenant mapping matches the request
	ErrCodeUnknownTenant = "ERR_UNKNOWN_TENANT"
	// ErrCodeTenantSuspended is used when the resolved tenant is suspended
	ErrCodeTenantSuspended = "ERR_TENANT_SUSPENDED"
	// ErrCodeSecretUnavailable is used when tenant credentials cannot be resolved
	ErrCodeSecretUnavailable = "ERR_SECRET_UNAVAILABLE"
)

// Synchronization error codes
const (
	// ErrCodeSyncConflict is used for irreconcilable state divergence
	ErrCodeSyncConflict = "ERR_SYNC_CONFLICT"
	// ErrCodeConcurrencyConflict is used when optimistic locking fails
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	// ErrCodeTransientDependency is used when a downstream dependency is unavailable
	ErrCodeTransientDependency = "ERR_TRANSIENT_DEPENDENCY"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeRequestTooLarge is used when the request body exceeds the limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes.
//
// Unknown or suspended tenants both map to 404 so an unauthenticated caller
// cannot probe which tenant codes exist in a given state; the body code still
// distinguishes them for callers that are allowed to know.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeSignatureInvalid:  http.StatusUnauthorized,
	ErrCodeUnknownTenant:     http.StatusNotFound,
	ErrCodeTenantSuspended:   http.StatusNotFound,
	ErrCodeSecretUnavailable: http.StatusServiceUnavailable,

	// 409 is reserved for divergence that needs a human; a lost optimistic
	// write is transient and must invite redelivery, so it answers 503.
	ErrCodeSyncConflict:        http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusServiceUnavailable,
	ErrCodeTransientDependency: http.StatusServiceUnavailable,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidState:    http.StatusUnprocessableEntity,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"AUTHENTICATION_FAILED": ErrCodeSignatureInvalid,
	"UNKNOWN_TENANT":        ErrCodeUnknownTenant,
	"TENANT_SUSPENDED":      ErrCodeTenantSuspended,
	"SECRET_UNAVAILABLE":    ErrCodeSecretUnavailable,
	"SYNC_CONFLICT":         ErrCodeSyncConflict,
	"CONCURRENCY_CONFLICT":  ErrCodeConcurrencyConflict,
	"TRANSIENT_DEPENDENCY":  ErrCodeTransientDependency,
	"NOT_FOUND":             ErrCodeNotFound,
	"ALREADY_EXISTS":        ErrCodeAlreadyExists,
	"INVALID_INPUT":         ErrCodeInvalidInput,
	"INVALID_STATE":         ErrCodeInvalidState,
	"BAD_REQUEST":           ErrCodeBadRequest,
	"INTERNAL_ERROR":        ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format
// If the code is already in the API format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
