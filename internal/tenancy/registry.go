package tenancy

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/suteetoe/authgate/internal/model"
	"gorm.io/gorm"
)

var (
	ErrTenantNotFound    = errors.New("tenancy: tenant not found")
	ErrInvalidIdentifier = errors.New("tenancy: identifier must contain only lowercase letters, digits and hyphens")
	ErrIdentifierTaken   = errors.New("tenancy: identifier already in use")
	ErrTenantHasUsers    = errors.New("tenancy: tenant still has users")
)

var identifierPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidateIdentifier checks the human-chosen tenant slug. Identifiers are
// immutable once users reference them, so the format is enforced on create.
func ValidateIdentifier(identifier string) error {
	if identifier == "" || len(identifier) > 64 || !identifierPattern.MatchString(identifier) {
		return ErrInvalidIdentifier
	}
	return nil
}

// Registry stores tenant records. Tenants themselves are not tenant-scoped,
// so the registry is unaffected by the isolation plugin.
type Registry struct {
	db *gorm.DB
}

// NewRegistry creates a tenant registry over the given database
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Create inserts a new active tenant with the given identifier
func (r *Registry) Create(ctx context.Context, identifier, name, settings string) (*model.Tenant, error) {
	if err := ValidateIdentifier(identifier); err != nil {
		return nil, err
	}

	tenant := model.Tenant{
		Identifier: identifier,
		Name:       name,
		IsActive:   true,
		Settings:   settings,
	}
	if err := r.db.WithContext(ctx).Create(&tenant).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrIdentifierTaken, identifier)
		}
		return nil, fmt.Errorf("creating tenant: %w", err)
	}
	return &tenant, nil
}

// GetByID retrieves a tenant by its internal id
func (r *Registry) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	return &tenant, nil
}

// GetByIdentifier retrieves a tenant by its external slug
func (r *Registry) GetByIdentifier(ctx context.Context, identifier string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := r.db.WithContext(ctx).Where("identifier = ?", identifier).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	return &tenant, nil
}

// ActiveByIdentifier retrieves a tenant by slug only if it is active.
// Unknown and inactive tenants are indistinguishable to the caller.
func (r *Registry) ActiveByIdentifier(ctx context.Context, identifier string) (*model.Tenant, error) {
	tenant, err := r.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive {
		return nil, ErrTenantNotFound
	}
	return tenant, nil
}

// ActiveByID retrieves a tenant by internal id only if it is active
func (r *Registry) ActiveByID(ctx context.Context, id string) (*model.Tenant, error) {
	tenant, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive {
		return nil, ErrTenantNotFound
	}
	return tenant, nil
}

// List returns all tenants
func (r *Registry) List(ctx context.Context) ([]model.Tenant, error) {
	var tenants []model.Tenant
	if err := r.db.WithContext(ctx).Order("created_at").Find(&tenants).Error; err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	return tenants, nil
}

// Update changes a tenant's display name and settings. The identifier is
// immutable once created.
func (r *Registry) Update(ctx context.Context, id, name, settings string) (*model.Tenant, error) {
	tenant, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if name != "" {
		updates["name"] = name
	}
	if settings != "" {
		updates["settings"] = settings
	}
	if len(updates) == 0 {
		return tenant, nil
	}

	if err := r.db.WithContext(ctx).Model(tenant).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("updating tenant: %w", err)
	}
	return tenant, nil
}

// SetActive activates or deactivates a tenant
func (r *Registry) SetActive(ctx context.Context, id string, active bool) error {
	result := r.db.WithContext(ctx).Model(&model.Tenant{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("updating tenant active flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// Delete removes a tenant. Deletion is refused while users still reference
// the tenant; deactivation is the supported way to retire a tenant that has
// history.
func (r *Registry) Delete(ctx context.Context, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("tenant_id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("counting tenant users: %w", err)
	}
	if count > 0 {
		return ErrTenantHasUsers
	}

	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Tenant{})
	if result.Error != nil {
		return fmt.Errorf("deleting tenant: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint")
}
