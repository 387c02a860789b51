package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant is the subscribing customer. The ledger only owns the reseller binding.
type Tenant struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name       string     `gorm:"column:name;not null"`
	ResellerID *uuid.UUID `gorm:"column:reseller_id;type:uuid"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Tenant) TableName() string { return "tenants" }

func (t *Tenant) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
