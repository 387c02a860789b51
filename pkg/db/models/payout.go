package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

// Payout aggregates consumed ledger entries for one affiliate and tracks the
// owed -> approved -> paid workflow. DisbursingAt is set while a stripe
// transfer for the payout is in flight.
type Payout struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AffiliateID           uuid.UUID           `gorm:"column:affiliate_id;type:uuid;not null"`
	PeriodStart           *time.Time          `gorm:"column:period_start"`
	PeriodEnd             *time.Time          `gorm:"column:period_end"`
	GrossRevenueCents     int64               `gorm:"column:gross_revenue_cents;not null"`
	CommissionEarnedCents int64               `gorm:"column:commission_earned_cents;not null"`
	AdjustmentsCents      int64               `gorm:"column:adjustments_cents;not null"`
	NetPayableCents       int64               `gorm:"column:net_payable_cents;not null"`
	Currency              string              `gorm:"column:currency;not null"`
	Status                enums.PayoutStatus  `gorm:"column:status;type:payout_status;not null"`
	EntryCount            int                 `gorm:"column:entry_count;not null"`
	ApprovedAt            *time.Time          `gorm:"column:approved_at"`
	ApprovedBy            *uuid.UUID          `gorm:"column:approved_by;type:uuid"`
	PaidAt                *time.Time          `gorm:"column:paid_at"`
	PayoutMethod          *enums.PayoutMethod `gorm:"column:payout_method;type:payout_method"`
	PayoutReference       *string             `gorm:"column:payout_reference"`
	VoidedAt              *time.Time          `gorm:"column:voided_at"`
	VoidReason            *string             `gorm:"column:void_reason"`
	DisbursingAt          *time.Time          `gorm:"column:disbursing_at"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payout) TableName() string { return "payouts" }

func (p *Payout) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// PayoutEntry marks a ledger entry as consumed by a payout. ReleasedAt is set
// when the payout is voided, returning the entry to the unsettled set.
type PayoutEntry struct {
	PayoutID      uuid.UUID  `gorm:"column:payout_id;type:uuid;primaryKey"`
	LedgerEntryID uuid.UUID  `gorm:"column:ledger_entry_id;type:uuid;primaryKey"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	ReleasedAt    *time.Time `gorm:"column:released_at"`
}

func (PayoutEntry) TableName() string { return "payout_entries" }
