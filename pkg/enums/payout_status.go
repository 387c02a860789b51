package enums

import "slices"

// PayoutStatus maps to the payout_status enum in Postgres.
type PayoutStatus string

const (
	PayoutStatusOwed     PayoutStatus = "owed"
	PayoutStatusApproved PayoutStatus = "approved"
	PayoutStatusPaid     PayoutStatus = "paid"
	PayoutStatusVoid     PayoutStatus = "void"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusOwed,
	PayoutStatusApproved,
	PayoutStatusPaid,
	PayoutStatusVoid,
}

// OutstandingPayoutStatuses are the non-terminal states; an affiliate holds at
// most one payout in any of them.
var OutstandingPayoutStatuses = []PayoutStatus{PayoutStatusOwed, PayoutStatusApproved}

// IsValid reports whether the value matches the payout_status enum.
func (s PayoutStatus) IsValid() bool {
	return slices.Contains(validPayoutStatuses, s)
}

// IsTerminal reports whether no further transition is allowed.
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusPaid || s == PayoutStatusVoid
}

// ParsePayoutStatus converts raw input into PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	return parse(validPayoutStatuses, value, "payout status")
}
