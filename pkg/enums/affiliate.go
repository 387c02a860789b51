package enums

import "slices"

// AffiliateKind maps to the affiliate_kind enum in Postgres.
type AffiliateKind string

const (
	AffiliateKindPartner  AffiliateKind = "partner"
	AffiliateKindReseller AffiliateKind = "reseller"
)

var validAffiliateKinds = []AffiliateKind{
	AffiliateKindPartner,
	AffiliateKindReseller,
}

// IsValid reports whether the value matches the affiliate_kind enum.
func (k AffiliateKind) IsValid() bool {
	return slices.Contains(validAffiliateKinds, k)
}

// ParseAffiliateKind converts raw input into AffiliateKind.
func ParseAffiliateKind(value string) (AffiliateKind, error) {
	return parse(validAffiliateKinds, value, "affiliate kind")
}

// SourceType is the revenue source an assignment of this kind binds.
func (k AffiliateKind) SourceType() RevenueSourceType {
	if k == AffiliateKindReseller {
		return RevenueSourceTenant
	}
	return RevenueSourceListing
}

// AffiliateStatus maps to the affiliate_status enum in Postgres.
//
// Partners move pending -> approved <-> suspended, or pending -> rejected.
// Resellers start active and move active <-> suspended.
type AffiliateStatus string

const (
	AffiliateStatusPending   AffiliateStatus = "pending"
	AffiliateStatusApproved  AffiliateStatus = "approved"
	AffiliateStatusRejected  AffiliateStatus = "rejected"
	AffiliateStatusActive    AffiliateStatus = "active"
	AffiliateStatusSuspended AffiliateStatus = "suspended"
)

var validAffiliateStatuses = []AffiliateStatus{
	AffiliateStatusPending,
	AffiliateStatusApproved,
	AffiliateStatusRejected,
	AffiliateStatusActive,
	AffiliateStatusSuspended,
}

// IsValid reports whether the value matches the affiliate_status enum.
func (s AffiliateStatus) IsValid() bool {
	return slices.Contains(validAffiliateStatuses, s)
}

// ParseAffiliateStatus converts raw input into AffiliateStatus.
func ParseAffiliateStatus(value string) (AffiliateStatus, error) {
	return parse(validAffiliateStatuses, value, "affiliate status")
}

// CanEarn reports whether an affiliate in this status may accrue commission
// or receive new assignments.
func (s AffiliateStatus) CanEarn() bool {
	return s == AffiliateStatusApproved || s == AffiliateStatusActive
}

// PayoutMethod identifies how settled funds leave the platform.
type PayoutMethod string

const (
	PayoutMethodBankTransfer  PayoutMethod = "bank_transfer"
	PayoutMethodStripeConnect PayoutMethod = "stripe_connect"
	PayoutMethodManual        PayoutMethod = "manual"
)

var validPayoutMethods = []PayoutMethod{
	PayoutMethodBankTransfer,
	PayoutMethodStripeConnect,
	PayoutMethodManual,
}

// IsValid reports whether the value matches the payout_method enum.
func (m PayoutMethod) IsValid() bool {
	return slices.Contains(validPayoutMethods, m)
}

// ParsePayoutMethod converts raw input into PayoutMethod. "bank" is accepted
// as shorthand for bank_transfer.
func ParsePayoutMethod(value string) (PayoutMethod, error) {
	if value == "bank" {
		return PayoutMethodBankTransfer, nil
	}
	return parse(validPayoutMethods, value, "payout method")
}
