package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a principal scoped to exactly one tenant. Email uniqueness
// is per tenant, not global.
type User struct {
	ID               string     `json:"id" gorm:"type:uuid;primaryKey"`
	Email            string     `json:"email" gorm:"type:varchar(100);not null"`
	NormalizedEmail  string     `json:"-" gorm:"type:varchar(100);not null;uniqueIndex:idx_users_tenant_email"`
	PasswordHash     string     `json:"-" gorm:"type:varchar(255)"`
	TenantID         string     `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_users_tenant_email"`
	FirstName        string     `json:"first_name,omitempty" gorm:"type:varchar(100)"`
	LastName         string     `json:"last_name,omitempty" gorm:"type:varchar(100)"`
	IsActive         bool       `json:"is_active" gorm:"default:true"`
	TwoFactorEnabled bool       `json:"two_factor_enabled" gorm:"default:false"`
	FailedAttempts   int        `json:"-"`
	LockoutUntil     *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// BeforeCreate assigns a server-generated id
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// GetTenantID implements tenancy.TenantOwned
func (u *User) GetTenantID() string { return u.TenantID }

// SetTenantID implements tenancy.TenantOwned
func (u *User) SetTenantID(id string) { u.TenantID = id }

// NormalizeEmail canonicalizes an email address for uniqueness checks
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
