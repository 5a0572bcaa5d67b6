package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/smarteros/backend/internal/domain/identity"
	"github.com/smarteros/backend/internal/domain/shared"
	"github.com/smarteros/backend/internal/infrastructure/persistence/models"
)

// GormTenantRepository implements TenantRepository using GORM
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a new GormTenantRepository
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// Save persists a new tenant
func (r *GormTenantRepository) Save(ctx context.Context, tenant *identity.Tenant) error {
	var model models.TenantModel
	model.FromDomain(tenant)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Update persists changes to an existing tenant
func (r *GormTenantRepository) Update(ctx context.Context, tenant *identity.Tenant) error {
	var model models.TenantModel
	model.FromDomain(tenant)
	result := r.db.WithContext(ctx).Model(&models.TenantModel{}).
		Where("id = ?", tenant.ID).
		Select("*").Omit("id", "created_at").
		Updates(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a tenant by its ID
func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	var model models.TenantModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrUnknownTenant
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCode finds a tenant by its business registration code
func (r *GormTenantRepository) FindByCode(ctx context.Context, code string) (*identity.Tenant, error) {
	var model models.TenantModel
	if err := r.db.WithContext(ctx).
		Where("code = ?", strings.TrimSpace(code)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrUnknownTenant
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByStoreDomain finds a tenant by its storefront hostname
func (r *GormTenantRepository) FindByStoreDomain(ctx context.Context, domain string) (*identity.Tenant, error) {
	var model models.TenantModel
	if err := r.db.WithContext(ctx).
		Where("store_domain = ?", strings.ToLower(strings.TrimSpace(domain))).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrUnknownTenant
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns a page of tenants with the total count
func (r *GormTenantRepository) List(ctx context.Context, offset, limit int) ([]*identity.Tenant, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.TenantModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var tenantModels []models.TenantModel
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Offset(offset).Limit(limit).
		Find(&tenantModels).Error; err != nil {
		return nil, 0, err
	}

	tenants := make([]*identity.Tenant, len(tenantModels))
	for i := range tenantModels {
		tenants[i] = tenantModels[i].ToDomain()
	}
	return tenants, total, nil
}
