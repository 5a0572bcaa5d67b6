package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ERPEntity is the adapter's view of an entity on the ERP side
type ERPEntity struct {
	ID          string
	ExternalRef string
	Kind        EntityType
	UpdatedAt   time.Time
}

// ERPPayload carries the fields to write on the ERP side. ExternalRef is
// the stable reference the adapter looks up before creating, which is
// what makes a crashed-and-retried write safe.
type ERPPayload struct {
	ExternalRef string
	Kind        EntityType
	Fields      map[string]any
}

// ERPAdapter is the boundary to the tenant's ERP instance. All calls are
// scoped by tenant-derived credentials and must be safe to repeat with
// the same logical input.
type ERPAdapter interface {
	FindByExternalRef(ctx context.Context, tenantID uuid.UUID, kind EntityType, externalRef string) (*ERPEntity, error)
	Create(ctx context.Context, tenantID uuid.UUID, payload ERPPayload) (*ERPEntity, error)
	Update(ctx context.Context, tenantID uuid.UUID, erpID string, payload ERPPayload) (*ERPEntity, error)
}

// CredentialLease is a short-lived set of credentials for one downstream
// service; holders must re-resolve after expiry and never persist it.
type CredentialLease struct {
	Credentials map[string]string
	TTL         time.Duration
	IssuedAt    time.Time
}

// Expired reports whether the lease is past its TTL
func (l *CredentialLease) Expired() bool {
	if l.TTL <= 0 {
		return false
	}
	return time.Since(l.IssuedAt) >= l.TTL
}

// Get returns a credential value by key, empty when absent
func (l *CredentialLease) Get(key string) string {
	if l == nil {
		return ""
	}
	return l.Credentials[key]
}

// SecretStore resolves leased credentials for one tenant and service.
// Fails with ErrSecretUnavailable when the backing store cannot serve.
type SecretStore interface {
	Resolve(ctx context.Context, tenantCode, service string) (*CredentialLease, error)
}
