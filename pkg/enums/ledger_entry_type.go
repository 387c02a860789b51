package enums

import "slices"

// LedgerEntryType maps to the ledger_entry_type enum in Postgres.
type LedgerEntryType string

const (
	LedgerEntryEarned     LedgerEntryType = "earned"
	LedgerEntryAdjustment LedgerEntryType = "adjustment"
	LedgerEntryPayout     LedgerEntryType = "payout"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryEarned,
	LedgerEntryAdjustment,
	LedgerEntryPayout,
}

// IsValid reports whether the value matches the ledger_entry_type enum.
func (t LedgerEntryType) IsValid() bool {
	return slices.Contains(validLedgerEntryTypes, t)
}

// Settleable reports whether entries of this type can be consumed by a payout.
func (t LedgerEntryType) Settleable() bool {
	return t == LedgerEntryEarned || t == LedgerEntryAdjustment
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	return parse(validLedgerEntryTypes, value, "ledger entry type")
}
