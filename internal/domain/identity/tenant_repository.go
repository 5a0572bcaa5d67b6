package identity

import (
	"context"

	"github.com/google/uuid"
)

// TenantRepository provides persistence for tenants
type TenantRepository interface {
	Save(ctx context.Context, tenant *Tenant) error
	Update(ctx context.Context, tenant *Tenant) error
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	FindByCode(ctx context.Context, code string) (*Tenant, error)
	FindByStoreDomain(ctx context.Context, domain string) (*Tenant, error)
	List(ctx context.Context, offset, limit int) ([]*Tenant, int64, error)
}
