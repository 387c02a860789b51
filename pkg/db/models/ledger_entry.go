package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

// LedgerEntry is an immutable signed money record for one affiliate. Earned
// entries carry the invoice split; payout entries are negative.
type LedgerEntry struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AffiliateID     uuid.UUID             `gorm:"column:affiliate_id;type:uuid;not null"`
	InvoiceID       *uuid.UUID            `gorm:"column:invoice_id;type:uuid"`
	AssignmentID    *uuid.UUID            `gorm:"column:assignment_id;type:uuid"`
	PayoutID        *uuid.UUID            `gorm:"column:payout_id;type:uuid"`
	Type            enums.LedgerEntryType `gorm:"column:type;type:ledger_entry_type;not null"`
	AmountCents     int64                 `gorm:"column:amount_cents;not null"`
	GrossCents      int64                 `gorm:"column:gross_cents;not null;default:0"`
	CommissionCents int64                 `gorm:"column:commission_cents;not null;default:0"`
	NetCents        int64                 `gorm:"column:net_cents;not null;default:0"`
	Currency        string                `gorm:"column:currency;not null"`
	ActorID         *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	Reason          *string               `gorm:"column:reason"`
	OccurredAt      time.Time             `gorm:"column:occurred_at;not null"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
