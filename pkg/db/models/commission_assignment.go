package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

// CommissionAssignment binds one revenue source to one affiliate and policy for
// a validity window. EffectiveTo is nil while the assignment is active.
type CommissionAssignment struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AffiliateID     uuid.UUID               `gorm:"column:affiliate_id;type:uuid;not null"`
	SourceType      enums.RevenueSourceType `gorm:"column:source_type;type:revenue_source_type;not null"`
	SourceID        uuid.UUID               `gorm:"column:source_id;type:uuid;not null"`
	CommissionType  enums.CommissionType    `gorm:"column:commission_type;type:commission_type;not null"`
	CommissionValue decimal.Decimal         `gorm:"column:commission_value;type:numeric(12,4);not null"`
	Currency        *string                 `gorm:"column:currency"`
	EffectiveFrom   time.Time               `gorm:"column:effective_from;not null"`
	EffectiveTo     *time.Time              `gorm:"column:effective_to"`
	EndedReason     *string                 `gorm:"column:ended_reason"`
	CreatedBy       *uuid.UUID              `gorm:"column:created_by;type:uuid"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (CommissionAssignment) TableName() string { return "commission_assignments" }

func (c *CommissionAssignment) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// ActiveAt reports whether the assignment was in effect at t.
func (c CommissionAssignment) ActiveAt(t time.Time) bool {
	if t.Before(c.EffectiveFrom) {
		return false
	}
	return c.EffectiveTo == nil || t.Before(*c.EffectiveTo)
}
