package commission

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Policy is a closed variant: either a percentage of gross or a fixed
// minor-unit amount capped at gross. Build one with Percent, Fixed or
// FromAssignment; the zero value is not usable.
type Policy struct {
	kind       enums.CommissionType
	percent    decimal.Decimal
	fixedCents int64
	currency   string
}

// Split is the result of applying a policy to a gross amount.
type Split struct {
	GrossCents      int64
	CommissionCents int64
	NetCents        int64
	Currency        string
}

// Percent builds a percentage policy. value is a percentage in [0, 100].
// An empty currency means the policy applies to any invoice currency.
func Percent(value decimal.Decimal, currency string) (Policy, error) {
	if value.IsNegative() || value.GreaterThan(hundred) {
		return Policy{}, pkgerrors.New(pkgerrors.CodeValidation, "percent commission must be between 0 and 100")
	}
	return Policy{kind: enums.CommissionTypePercent, percent: value, currency: NormalizeCurrency(currency)}, nil
}

// Fixed builds a fixed-amount policy in minor units.
func Fixed(cents int64, currency string) (Policy, error) {
	if cents < 0 {
		return Policy{}, pkgerrors.New(pkgerrors.CodeValidation, "fixed commission must be non-negative")
	}
	return Policy{kind: enums.CommissionTypeFixed, fixedCents: cents, currency: NormalizeCurrency(currency)}, nil
}

// FromAssignment rebuilds a policy from its persisted columns. Fixed values
// are stored in minor units and must be whole numbers.
func FromAssignment(kind enums.CommissionType, value decimal.Decimal, currency *string) (Policy, error) {
	cur := ""
	if currency != nil {
		cur = *currency
	}
	switch kind {
	case enums.CommissionTypePercent:
		return Percent(value, cur)
	case enums.CommissionTypeFixed:
		if !value.Equal(value.Truncate(0)) {
			return Policy{}, pkgerrors.New(pkgerrors.CodeValidation, "fixed commission must be a whole number of minor units")
		}
		return Fixed(value.IntPart(), cur)
	default:
		return Policy{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown commission type %q", kind))
	}
}

func (p Policy) Kind() enums.CommissionType { return p.kind }

// Value returns the stored representation: the percentage, or the fixed
// amount in minor units.
func (p Policy) Value() decimal.Decimal {
	if p.kind == enums.CommissionTypeFixed {
		return decimal.NewFromInt(p.fixedCents)
	}
	return p.percent
}

// Currency is empty when the policy is currency-agnostic.
func (p Policy) Currency() string { return p.currency }

// Split divides gross into the affiliate's commission and the platform net.
// commission+net always equals gross and neither side is negative. Percent
// commissions round half up to the nearest minor unit.
func (p Policy) Split(grossCents int64, currency string) (Split, error) {
	if grossCents < 0 {
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation, "gross amount must be non-negative")
	}
	currency = NormalizeCurrency(currency)
	if p.currency != "" && p.currency != currency {
		return Split{}, pkgerrors.New(pkgerrors.CodeCurrency, "invoice currency does not match commission policy").
			WithDetails(map[string]any{"invoice_currency": currency, "policy_currency": p.currency})
	}

	var commission int64
	switch p.kind {
	case enums.CommissionTypePercent:
		commission = decimal.NewFromInt(grossCents).
			Mul(p.percent).
			Div(hundred).
			Round(0).
			IntPart()
	case enums.CommissionTypeFixed:
		commission = p.fixedCents
	default:
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation, "commission policy not initialized")
	}

	commission = clamp(commission, 0, grossCents)
	return Split{
		GrossCents:      grossCents,
		CommissionCents: commission,
		NetCents:        grossCents - commission,
		Currency:        currency,
	}, nil
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NormalizeCurrency upper-cases and trims an ISO currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
