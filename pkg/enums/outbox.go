package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateAffiliate   OutboxAggregateType = "affiliate"
	AggregateAssignment  OutboxAggregateType = "assignment"
	AggregateLedgerEntry OutboxAggregateType = "ledger_entry"
	AggregatePayout      OutboxAggregateType = "payout"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateAffiliate,
	AggregateAssignment,
	AggregateLedgerEntry,
	AggregatePayout,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventAffiliateStatusChanged OutboxEventType = "affiliate_status_changed"
	EventAssignmentCreated      OutboxEventType = "assignment_created"
	EventAssignmentEnded        OutboxEventType = "assignment_ended"
	EventEarningAccrued         OutboxEventType = "earning_accrued"
	EventLedgerAdjusted         OutboxEventType = "ledger_adjusted"
	EventPayoutGenerated        OutboxEventType = "payout_generated"
	EventPayoutApproved         OutboxEventType = "payout_approved"
	EventPayoutPaid             OutboxEventType = "payout_paid"
	EventPayoutVoided           OutboxEventType = "payout_voided"
)

var validOutboxEventTypes = []OutboxEventType{
	EventAffiliateStatusChanged,
	EventAssignmentCreated,
	EventAssignmentEnded,
	EventEarningAccrued,
	EventLedgerAdjusted,
	EventPayoutGenerated,
	EventPayoutApproved,
	EventPayoutPaid,
	EventPayoutVoided,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(validOutboxEventTypes, value, "outbox event type")
}
