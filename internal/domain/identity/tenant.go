package identity

import (
	"strings"

	"github.com/smarteros/backend/internal/domain/shared"
)

// TenantStatus represents the lifecycle state of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusDeleted   TenantStatus = "deleted"
)

// ResourceHandles are the per-tenant pointers into downstream systems.
// They are opaque to the sync engine; adapters interpret them.
type ResourceHandles struct {
	InboxID      string `json:"inbox_id"`
	WorkspaceID  string `json:"workspace_id"`
	ERPCompanyID string `json:"erp_company_id"`
	SecretPath   string `json:"secret_path"`
}

// Tenant is the unit of isolation. Code is the business registration
// number used in topic names and credential paths; StoreDomain is the
// storefront hostname used as a routing hint on inbound webhooks.
type Tenant struct {
	shared.BaseEntity
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	StoreDomain string          `json:"store_domain"`
	Status      TenantStatus    `json:"status"`
	Handles     ResourceHandles `json:"handles"`
}

// NewTenant creates an active tenant
func NewTenant(code, name, storeDomain string, handles ResourceHandles) (*Tenant, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "tenant code is required")
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "tenant name is required")
	}
	return &Tenant{
		BaseEntity:  shared.NewBaseEntity(),
		Code:        code,
		Name:        name,
		StoreDomain: strings.ToLower(strings.TrimSpace(storeDomain)),
		Status:      TenantStatusActive,
		Handles:     handles,
	}, nil
}

// CanProcessEvents reports whether inbound events may be accepted for this tenant
func (t *Tenant) CanProcessEvents() bool {
	return t.Status == TenantStatusActive
}

// Suspend halts event processing without losing the tenant's data
func (t *Tenant) Suspend() error {
	if t.Status == TenantStatusDeleted {
		return shared.ErrInvalidState
	}
	t.Status = TenantStatusSuspended
	t.Touch()
	return nil
}

// Activate resumes event processing for a suspended tenant
func (t *Tenant) Activate() error {
	if t.Status == TenantStatusDeleted {
		return shared.ErrInvalidState
	}
	t.Status = TenantStatusActive
	t.Touch()
	return nil
}

// SoftDelete marks the tenant deleted; deleted tenants never come back
func (t *Tenant) SoftDelete() {
	t.Status = TenantStatusDeleted
	t.Touch()
}
