package enums

// AuditAction labels rows in affiliate_audit_logs.
type AuditAction string

const (
	AuditAffiliateApplied     AuditAction = "affiliate_applied"
	AuditAffiliateApproved    AuditAction = "affiliate_approved"
	AuditAffiliateRejected    AuditAction = "affiliate_rejected"
	AuditAffiliateSuspended   AuditAction = "affiliate_suspended"
	AuditAffiliateReactivated AuditAction = "affiliate_reactivated"
	AuditAssignmentCreated    AuditAction = "assignment_created"
	AuditAssignmentEnded      AuditAction = "assignment_ended"
	AuditEarningAccrued       AuditAction = "earning_accrued"
	AuditLedgerAdjusted       AuditAction = "ledger_adjusted"
	AuditPayoutGenerated      AuditAction = "payout_generated"
	AuditPayoutApproved       AuditAction = "payout_approved"
	AuditPayoutPaid           AuditAction = "payout_paid"
	AuditPayoutVoided         AuditAction = "payout_voided"
)
