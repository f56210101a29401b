package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant represents an isolated customer partition. The Identifier is the
// external-facing handle used in headers, routes and claims; ID is the
// internal key used for isolation filtering and the tenant claim value.
type Tenant struct {
	ID                 string         `json:"id" gorm:"type:uuid;primaryKey"`
	Identifier         string         `json:"identifier" gorm:"type:varchar(64);uniqueIndex;not null"`
	Name               string         `json:"name" gorm:"type:varchar(100)"`
	IsActive           bool           `json:"is_active" gorm:"default:true"`
	ConnectionOverride string         `json:"-" gorm:"type:text"`
	Settings           string         `json:"settings,omitempty" gorm:"type:jsonb"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate assigns a server-generated id
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
