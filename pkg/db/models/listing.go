package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Listing is a marketplace add-on published by a partner.
type Listing struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PartnerID   uuid.UUID `gorm:"column:partner_id;type:uuid;not null"`
	Name        string    `gorm:"column:name;not null"`
	Description *string   `gorm:"column:description"`
	PriceCents  int64     `gorm:"column:price_cents;not null"`
	Currency    string    `gorm:"column:currency;not null"`
	Active      bool      `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Listing) TableName() string { return "listings" }

func (l *Listing) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
