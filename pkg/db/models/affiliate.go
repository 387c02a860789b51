package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

// Affiliate is a partner or reseller account. Rows are never deleted; status
// carries the soft state.
type Affiliate struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Kind            enums.AffiliateKind   `gorm:"column:kind;type:affiliate_kind;not null"`
	OwnerID         uuid.UUID             `gorm:"column:owner_id;type:uuid;not null"`
	DisplayName     string                `gorm:"column:display_name;not null"`
	ContactEmail    string                `gorm:"column:contact_email;not null"`
	ContactPhone    *string               `gorm:"column:contact_phone"`
	PayoutMethod    enums.PayoutMethod    `gorm:"column:payout_method;type:payout_method;not null"`
	PayoutDetails   json.RawMessage       `gorm:"column:payout_details;type:jsonb"`
	CommissionType  *enums.CommissionType `gorm:"column:commission_type;type:commission_type"`
	CommissionValue *decimal.Decimal      `gorm:"column:commission_value;type:numeric(12,4)"`
	Currency        string                `gorm:"column:currency;not null"`
	Status          enums.AffiliateStatus `gorm:"column:status;type:affiliate_status;not null"`
	StatusReason    *string               `gorm:"column:status_reason"`
	ApprovedAt      *time.Time            `gorm:"column:approved_at"`
	SuspendedAt     *time.Time            `gorm:"column:suspended_at"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (Affiliate) TableName() string { return "affiliates" }

func (a *Affiliate) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
