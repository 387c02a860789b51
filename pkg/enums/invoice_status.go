package enums

import "slices"

// InvoiceStatus mirrors the payment processor's invoice lifecycle.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusVoid          InvoiceStatus = "void"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
)

var validInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusDraft,
	InvoiceStatusOpen,
	InvoiceStatusPaid,
	InvoiceStatusVoid,
	InvoiceStatusUncollectible,
}

// IsValid reports whether the value matches the invoice_status enum.
func (s InvoiceStatus) IsValid() bool {
	return slices.Contains(validInvoiceStatuses, s)
}

// ParseInvoiceStatus converts raw input into InvoiceStatus.
func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	return parse(validInvoiceStatuses, value, "invoice status")
}
