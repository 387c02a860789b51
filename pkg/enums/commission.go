package enums

import "slices"

// CommissionType maps to the commission_type enum in Postgres.
type CommissionType string

const (
	CommissionTypePercent CommissionType = "percent"
	CommissionTypeFixed   CommissionType = "fixed"
)

var validCommissionTypes = []CommissionType{
	CommissionTypePercent,
	CommissionTypeFixed,
}

// IsValid reports whether the value matches the commission_type enum.
func (c CommissionType) IsValid() bool {
	return slices.Contains(validCommissionTypes, c)
}

// ParseCommissionType converts raw input into CommissionType.
func ParseCommissionType(value string) (CommissionType, error) {
	return parse(validCommissionTypes, value, "commission type")
}

// RevenueSourceType names what an assignment binds: a marketplace listing
// (partners) or a tenant (resellers).
type RevenueSourceType string

const (
	RevenueSourceListing RevenueSourceType = "listing"
	RevenueSourceTenant  RevenueSourceType = "tenant"
)

var validRevenueSourceTypes = []RevenueSourceType{
	RevenueSourceListing,
	RevenueSourceTenant,
}

// IsValid reports whether the value matches the revenue_source_type enum.
func (r RevenueSourceType) IsValid() bool {
	return slices.Contains(validRevenueSourceTypes, r)
}

// ParseRevenueSourceType converts raw input into RevenueSourceType.
func ParseRevenueSourceType(value string) (RevenueSourceType, error) {
	return parse(validRevenueSourceTypes, value, "revenue source type")
}
