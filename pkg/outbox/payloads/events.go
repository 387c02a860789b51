package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

// AffiliateStatusChangedEvent is emitted on every account transition.
type AffiliateStatusChangedEvent struct {
	AffiliateID uuid.UUID             `json:"affiliate_id"`
	Kind        enums.AffiliateKind   `json:"kind"`
	From        enums.AffiliateStatus `json:"from,omitempty"`
	To          enums.AffiliateStatus `json:"to"`
	Reason      string                `json:"reason,omitempty"`
}

// AssignmentEvent covers creation and end of a commission assignment.
type AssignmentEvent struct {
	AssignmentID   uuid.UUID               `json:"assignment_id"`
	AffiliateID    uuid.UUID               `json:"affiliate_id"`
	SourceType     enums.RevenueSourceType `json:"source_type"`
	SourceID       uuid.UUID               `json:"source_id"`
	CommissionType enums.CommissionType    `json:"commission_type"`
	Value          string                  `json:"commission_value"`
	EffectiveFrom  time.Time               `json:"effective_from"`
	EffectiveTo    *time.Time              `json:"effective_to,omitempty"`
}

// EarningAccruedEvent links a paid invoice to the commission it produced.
type EarningAccruedEvent struct {
	LedgerEntryID   uuid.UUID `json:"ledger_entry_id"`
	AffiliateID     uuid.UUID `json:"affiliate_id"`
	InvoiceID       uuid.UUID `json:"invoice_id"`
	AssignmentID    uuid.UUID `json:"assignment_id"`
	GrossCents      int64     `json:"gross_cents"`
	CommissionCents int64     `json:"commission_cents"`
	NetCents        int64     `json:"net_cents"`
	Currency        string    `json:"currency"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// LedgerAdjustedEvent reports a manual correction.
type LedgerAdjustedEvent struct {
	LedgerEntryID uuid.UUID `json:"ledger_entry_id"`
	AffiliateID   uuid.UUID `json:"affiliate_id"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	Reason        string    `json:"reason"`
}

// PayoutEvent is shared by every payout transition.
type PayoutEvent struct {
	PayoutID        uuid.UUID           `json:"payout_id"`
	AffiliateID     uuid.UUID           `json:"affiliate_id"`
	Status          enums.PayoutStatus  `json:"status"`
	NetPayableCents int64               `json:"net_payable_cents"`
	Currency        string              `json:"currency"`
	EntryCount      int                 `json:"entry_count"`
	Method          *enums.PayoutMethod `json:"payout_method,omitempty"`
	Reference       *string             `json:"payout_reference,omitempty"`
	Reason          *string             `json:"reason,omitempty"`
}
