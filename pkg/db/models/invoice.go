package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

// Invoice mirrors a processor invoice. The split columns are stamped once at
// accrual time and never rewritten.
type Invoice struct {
	ID                     uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ExternalID             string              `gorm:"column:external_id;not null"`
	TenantID               uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null"`
	ListingID              *uuid.UUID          `gorm:"column:listing_id;type:uuid"`
	AmountCents            int64               `gorm:"column:amount_cents;not null"`
	Currency               string              `gorm:"column:currency;not null"`
	Status                 enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null"`
	PaidAt                 *time.Time          `gorm:"column:paid_at"`
	CommissionAffiliateID  *uuid.UUID          `gorm:"column:commission_affiliate_id;type:uuid"`
	CommissionAssignmentID *uuid.UUID          `gorm:"column:commission_assignment_id;type:uuid"`
	CommissionCents        *int64              `gorm:"column:commission_cents"`
	PlatformRevenueCents   *int64              `gorm:"column:platform_revenue_cents"`
	SplitAt                *time.Time          `gorm:"column:split_at"`
	CreatedAt              time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Invoice) TableName() string { return "invoices" }

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// RevenueSource resolves which assignment source an invoice belongs to: the
// listing when one is attached, the tenant otherwise.
func (i Invoice) RevenueSource() (enums.RevenueSourceType, uuid.UUID) {
	if i.ListingID != nil && *i.ListingID != uuid.Nil {
		return enums.RevenueSourceListing, *i.ListingID
	}
	return enums.RevenueSourceTenant, i.TenantID
}
