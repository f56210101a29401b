package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a named grant scoped to a tenant. Role names are unique per tenant.
type Role struct {
	ID             string    `json:"id" gorm:"type:uuid;primaryKey"`
	Name           string    `json:"name" gorm:"type:varchar(100);not null"`
	NormalizedName string    `json:"-" gorm:"type:varchar(100);not null;uniqueIndex:idx_roles_tenant_name"`
	TenantID       string    `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_roles_tenant_name"`
	Description    string    `json:"description,omitempty" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
}

// BeforeCreate assigns a server-generated id and the normalized name
func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.NormalizedName == "" {
		r.NormalizedName = NormalizeRoleName(r.Name)
	}
	return nil
}

// GetTenantID implements tenancy.TenantOwned
func (r *Role) GetTenantID() string { return r.TenantID }

// SetTenantID implements tenancy.TenantOwned
func (r *Role) SetTenantID(id string) { r.TenantID = id }

// NormalizeRoleName canonicalizes a role name for uniqueness checks
func NormalizeRoleName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// UserRole associates a user with a role inside the same tenant
type UserRole struct {
	UserID    string    `json:"user_id" gorm:"type:uuid;primaryKey"`
	RoleID    string    `json:"role_id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
}
