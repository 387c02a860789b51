package affiliates

import (
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

type transition struct {
	from []enums.AffiliateStatus
	to   enums.AffiliateStatus
}

// transitions lists every permitted move per account kind. Rejected is
// terminal for partners; resellers never pass through review.
var transitions = map[enums.AffiliateKind]map[enums.AuditAction]transition{
	enums.AffiliateKindPartner: {
		enums.AuditAffiliateApproved:    {from: []enums.AffiliateStatus{enums.AffiliateStatusPending}, to: enums.AffiliateStatusApproved},
		enums.AuditAffiliateRejected:    {from: []enums.AffiliateStatus{enums.AffiliateStatusPending}, to: enums.AffiliateStatusRejected},
		enums.AuditAffiliateSuspended:   {from: []enums.AffiliateStatus{enums.AffiliateStatusApproved}, to: enums.AffiliateStatusSuspended},
		enums.AuditAffiliateReactivated: {from: []enums.AffiliateStatus{enums.AffiliateStatusSuspended}, to: enums.AffiliateStatusApproved},
	},
	enums.AffiliateKindReseller: {
		enums.AuditAffiliateSuspended:   {from: []enums.AffiliateStatus{enums.AffiliateStatusActive}, to: enums.AffiliateStatusSuspended},
		enums.AuditAffiliateReactivated: {from: []enums.AffiliateStatus{enums.AffiliateStatusSuspended}, to: enums.AffiliateStatusActive},
	},
}

// InitialStatus is the status a freshly applied account starts in.
func InitialStatus(kind enums.AffiliateKind) enums.AffiliateStatus {
	if kind == enums.AffiliateKindReseller {
		return enums.AffiliateStatusActive
	}
	return enums.AffiliateStatusPending
}

// nextStatus resolves the target of action from current, or false when the
// move is not allowed.
func nextStatus(kind enums.AffiliateKind, current enums.AffiliateStatus, action enums.AuditAction) (enums.AffiliateStatus, bool) {
	t, ok := transitions[kind][action]
	if !ok {
		return "", false
	}
	for _, from := range t.from {
		if from == current {
			return t.to, true
		}
	}
	return "", false
}
