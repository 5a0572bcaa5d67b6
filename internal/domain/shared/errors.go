package shared

// DomainError represents a domain-level error with a stable machine-readable code
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error taxonomy for webhook ingestion and synchronization.
//
// The split matters for callers: authentication and tenant errors are rejected
// synchronously and never retried, transient dependency errors are owned by the
// retry manager, and duplicates are successful no-ops.
var (
	ErrAuthenticationFailed = NewDomainError("AUTHENTICATION_FAILED", "Webhook signature verification failed")
	ErrUnknownTenant        = NewDomainError("UNKNOWN_TENANT", "No tenant mapping exists for this request")
	ErrTenantSuspended      = NewDomainError("TENANT_SUSPENDED", "Tenant is suspended and cannot process events")
	ErrDuplicateEvent       = NewDomainError("DUPLICATE_EVENT", "Event was already recorded")
	ErrConflict             = NewDomainError("SYNC_CONFLICT", "Irreconcilable divergence, manual resolution required")
	ErrTransientDependency  = NewDomainError("TRANSIENT_DEPENDENCY", "A downstream dependency is temporarily unavailable")
	ErrSecretUnavailable    = NewDomainError("SECRET_UNAVAILABLE", "Tenant credentials could not be resolved")
	ErrConcurrencyConflict  = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrNotFound             = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists        = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput         = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState         = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)
