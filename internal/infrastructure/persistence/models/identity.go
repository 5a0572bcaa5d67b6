package models

import (
	"github.com/smarteros/backend/internal/domain/identity"
)

// TenantModel is the persistence model for tenants
type TenantModel struct {
	BaseModel
	Code         string `gorm:"size:64;not null;uniqueIndex"`
	Name         string `gorm:"size:255;not null"`
	StoreDomain  string `gorm:"size:255;uniqueIndex:idx_tenants_store_domain,where:store_domain <> ''"`
	Status       string `gorm:"size:16;not null;default:'active';index"`
	InboxID      string `gorm:"size:128"`
	WorkspaceID  string `gorm:"size:128"`
	ERPCompanyID string `gorm:"column:erp_company_id;size:128"`
	SecretPath   string `gorm:"size:255"`
}

// TableName returns the table name for TenantModel
func (TenantModel) TableName() string {
	return "tenants"
}

// ToDomain converts the model to a domain tenant
func (m *TenantModel) ToDomain() *identity.Tenant {
	return &identity.Tenant{
		BaseEntity:  m.BaseModel.ToDomain(),
		Code:        m.Code,
		Name:        m.Name,
		StoreDomain: m.StoreDomain,
		Status:      identity.TenantStatus(m.Status),
		Handles: identity.ResourceHandles{
			InboxID:      m.InboxID,
			WorkspaceID:  m.WorkspaceID,
			ERPCompanyID: m.ERPCompanyID,
			SecretPath:   m.SecretPath,
		},
	}
}

// FromDomain populates the model from a domain tenant
func (m *TenantModel) FromDomain(t *identity.Tenant) {
	m.FromDomainBaseEntity(t.BaseEntity)
	m.Code = t.Code
	m.Name = t.Name
	m.StoreDomain = t.StoreDomain
	m.Status = string(t.Status)
	m.InboxID = t.Handles.InboxID
	m.WorkspaceID = t.Handles.WorkspaceID
	m.ERPCompanyID = t.Handles.ERPCompanyID
	m.SecretPath = t.Handles.SecretPath
}
