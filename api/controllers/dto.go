package controllers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

type affiliateResponse struct {
	ID              uuid.UUID             `json:"id"`
	Kind            enums.AffiliateKind   `json:"kind"`
	OwnerID         uuid.UUID             `json:"owner_id"`
	DisplayName     string                `json:"display_name"`
	ContactEmail    string                `json:"contact_email"`
	ContactPhone    *string               `json:"contact_phone,omitempty"`
	PayoutMethod    enums.PayoutMethod    `json:"payout_method"`
	PayoutDetails   json.RawMessage       `json:"payout_details,omitempty"`
	CommissionType  *enums.CommissionType `json:"commission_type,omitempty"`
	CommissionValue *string               `json:"commission_value,omitempty"`
	Currency        string                `json:"currency"`
	Status          enums.AffiliateStatus `json:"status"`
	StatusReason    *string               `json:"status_reason,omitempty"`
	ApprovedAt      *time.Time            `json:"approved_at,omitempty"`
	SuspendedAt     *time.Time            `json:"suspended_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func newAffiliateResponse(a *models.Affiliate) affiliateResponse {
	resp := affiliateResponse{
		ID:             a.ID,
		Kind:           a.Kind,
		OwnerID:        a.OwnerID,
		DisplayName:    a.DisplayName,
		ContactEmail:   a.ContactEmail,
		ContactPhone:   a.ContactPhone,
		PayoutMethod:   a.PayoutMethod,
		PayoutDetails:  a.PayoutDetails,
		CommissionType: a.CommissionType,
		Currency:       a.Currency,
		Status:         a.Status,
		StatusReason:   a.StatusReason,
		ApprovedAt:     a.ApprovedAt,
		SuspendedAt:    a.SuspendedAt,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
	if a.CommissionValue != nil {
		value := a.CommissionValue.String()
		resp.CommissionValue = &value
	}
	return resp
}

func newAffiliateResponses(accounts []models.Affiliate) []affiliateResponse {
	out := make([]affiliateResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, newAffiliateResponse(&accounts[i]))
	}
	return out
}

type assignmentResponse struct {
	ID              uuid.UUID               `json:"id"`
	AffiliateID     uuid.UUID               `json:"affiliate_id"`
	SourceType      enums.RevenueSourceType `json:"source_type"`
	SourceID        uuid.UUID               `json:"source_id"`
	CommissionType  enums.CommissionType    `json:"commission_type"`
	CommissionValue string                  `json:"commission_value"`
	Currency        *string                 `json:"currency,omitempty"`
	EffectiveFrom   time.Time               `json:"effective_from"`
	EffectiveTo     *time.Time              `json:"effective_to,omitempty"`
	EndedReason     *string                 `json:"ended_reason,omitempty"`
	CreatedBy       *uuid.UUID              `json:"created_by,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
}

func newAssignmentResponse(a *models.CommissionAssignment) assignmentResponse {
	return assignmentResponse{
		ID:              a.ID,
		AffiliateID:     a.AffiliateID,
		SourceType:      a.SourceType,
		SourceID:        a.SourceID,
		CommissionType:  a.CommissionType,
		CommissionValue: a.CommissionValue.String(),
		Currency:        a.Currency,
		EffectiveFrom:   a.EffectiveFrom,
		EffectiveTo:     a.EffectiveTo,
		EndedReason:     a.EndedReason,
		CreatedBy:       a.CreatedBy,
		CreatedAt:       a.CreatedAt,
	}
}

func newAssignmentResponses(rows []models.CommissionAssignment) []assignmentResponse {
	out := make([]assignmentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, newAssignmentResponse(&rows[i]))
	}
	return out
}

type listingResponse struct {
	ID          uuid.UUID          `json:"id"`
	PartnerID   uuid.UUID          `json:"partner_id"`
	Name        string             `json:"name"`
	Description *string            `json:"description,omitempty"`
	PriceCents  int64              `json:"price_cents"`
	Currency    string             `json:"currency"`
	Active      bool               `json:"active"`
	Assignment  assignmentResponse `json:"assignment"`
	CreatedAt   time.Time          `json:"created_at"`
}

type ledgerEntryResponse struct {
	ID              uuid.UUID             `json:"id"`
	AffiliateID     uuid.UUID             `json:"affiliate_id"`
	Type            enums.LedgerEntryType `json:"type"`
	AmountCents     int64                 `json:"amount_cents"`
	GrossCents      int64                 `json:"gross_cents"`
	CommissionCents int64                 `json:"commission_cents"`
	NetCents        int64                 `json:"net_cents"`
	Currency        string                `json:"currency"`
	InvoiceID       *uuid.UUID            `json:"invoice_id,omitempty"`
	AssignmentID    *uuid.UUID            `json:"assignment_id,omitempty"`
	PayoutID        *uuid.UUID            `json:"payout_id,omitempty"`
	ActorID         *uuid.UUID            `json:"actor_id,omitempty"`
	Reason          *string               `json:"reason,omitempty"`
	OccurredAt      time.Time             `json:"occurred_at"`
	CreatedAt       time.Time             `json:"created_at"`
}

func newLedgerEntryResponse(e *models.LedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:              e.ID,
		AffiliateID:     e.AffiliateID,
		Type:            e.Type,
		AmountCents:     e.AmountCents,
		GrossCents:      e.GrossCents,
		CommissionCents: e.CommissionCents,
		NetCents:        e.NetCents,
		Currency:        e.Currency,
		InvoiceID:       e.InvoiceID,
		AssignmentID:    e.AssignmentID,
		PayoutID:        e.PayoutID,
		ActorID:         e.ActorID,
		Reason:          e.Reason,
		OccurredAt:      e.OccurredAt,
		CreatedAt:       e.CreatedAt,
	}
}

func newLedgerEntryResponses(entries []models.LedgerEntry) []ledgerEntryResponse {
	out := make([]ledgerEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, newLedgerEntryResponse(&entries[i]))
	}
	return out
}

type payoutResponse struct {
	ID                    uuid.UUID           `json:"id"`
	AffiliateID           uuid.UUID           `json:"affiliate_id"`
	PeriodStart           *time.Time          `json:"period_start,omitempty"`
	PeriodEnd             *time.Time          `json:"period_end,omitempty"`
	GrossRevenueCents     int64               `json:"gross_revenue_cents"`
	CommissionEarnedCents int64               `json:"commission_earned_cents"`
	AdjustmentsCents      int64               `json:"adjustments_cents"`
	NetPayableCents       int64               `json:"net_payable_cents"`
	Currency              string              `json:"currency"`
	Status                enums.PayoutStatus  `json:"status"`
	EntryCount            int                 `json:"entry_count"`
	ApprovedAt            *time.Time          `json:"approved_at,omitempty"`
	ApprovedBy            *uuid.UUID          `json:"approved_by,omitempty"`
	PaidAt                *time.Time          `json:"paid_at,omitempty"`
	PayoutMethod          *enums.PayoutMethod `json:"payout_method,omitempty"`
	PayoutReference       *string             `json:"payout_reference,omitempty"`
	VoidedAt              *time.Time          `json:"voided_at,omitempty"`
	VoidReason            *string             `json:"void_reason,omitempty"`
	DisbursingAt          *time.Time          `json:"disbursing_at,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
}

func newPayoutResponse(p *models.Payout) payoutResponse {
	return payoutResponse{
		ID:                    p.ID,
		AffiliateID:           p.AffiliateID,
		PeriodStart:           p.PeriodStart,
		PeriodEnd:             p.PeriodEnd,
		GrossRevenueCents:     p.GrossRevenueCents,
		CommissionEarnedCents: p.CommissionEarnedCents,
		AdjustmentsCents:      p.AdjustmentsCents,
		NetPayableCents:       p.NetPayableCents,
		Currency:              p.Currency,
		Status:                p.Status,
		EntryCount:            p.EntryCount,
		ApprovedAt:            p.ApprovedAt,
		ApprovedBy:            p.ApprovedBy,
		PaidAt:                p.PaidAt,
		PayoutMethod:          p.PayoutMethod,
		PayoutReference:       p.PayoutReference,
		VoidedAt:              p.VoidedAt,
		VoidReason:            p.VoidReason,
		DisbursingAt:          p.DisbursingAt,
		CreatedAt:             p.CreatedAt,
	}
}

func newPayoutResponses(rows []models.Payout) []payoutResponse {
	out := make([]payoutResponse, 0, len(rows))
	for i := range rows {
		out = append(out, newPayoutResponse(&rows[i]))
	}
	return out
}
