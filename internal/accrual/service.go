// Package accrual turns paid invoices into earned ledger entries.
package accrual

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/internal/affiliates"
	"github.com/angelmondragon/partnerledger-backend/internal/assignments"
	"github.com/angelmondragon/partnerledger-backend/internal/audit"
	"github.com/angelmondragon/partnerledger-backend/internal/commission"
	"github.com/angelmondragon/partnerledger-backend/internal/invoices"
	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	"github.com/angelmondragon/partnerledger-backend/pkg/db"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
	"github.com/angelmondragon/partnerledger-backend/pkg/metrics"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/partnerledger-backend/pkg/traces"
)

// Skip reasons reported in AccrualResult.Reason.
const (
	ReasonInvoiceNotFound      = "invoice_not_found"
	ReasonInvoiceNotPaid       = "invoice_not_paid"
	ReasonNoAssignment         = "no_assignment"
	ReasonAffiliateNotFound    = "affiliate_not_found"
	ReasonAffiliateNotEligible = "affiliate_not_eligible"
)

var (
	errAlreadyAccrued = errors.New("earning already accrued")
	errNotEligible    = errors.New("affiliate can no longer earn")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// AccrualResult describes what AccrueEarning did. Exactly one of Accrued,
// AlreadyAccrued or Skipped is true.
type AccrualResult struct {
	InvoiceID      uuid.UUID           `json:"invoice_id"`
	Accrued        bool                `json:"accrued"`
	AlreadyAccrued bool                `json:"already_accrued"`
	Skipped        bool                `json:"skipped"`
	Reason         string              `json:"reason,omitempty"`
	Entry          *models.LedgerEntry `json:"entry,omitempty"`
}

// BatchResult tallies an AccrueBatch run.
type BatchResult struct {
	Accrued        int `json:"accrued"`
	AlreadyAccrued int `json:"already_accrued"`
	Skipped        int `json:"skipped"`
	Failed         int `json:"failed"`
}

// Service accrues commission on paid invoices.
type Service interface {
	AccrueEarning(ctx context.Context, invoiceID uuid.UUID) (*AccrualResult, error)
	AccrueBatch(ctx context.Context, invoiceIDs []uuid.UUID) (BatchResult, error)
	Backfill(ctx context.Context, paidSince time.Time, limit int) (BatchResult, error)
}

// Params wires the accrual service.
type Params struct {
	DB          txRunner
	Invoices    invoices.Repository
	Assignments assignments.Repository
	Affiliates  affiliates.Repository
	Ledger      ledger.Repository
	Audit       audit.Recorder
	Outbox      outboxPublisher
	Metrics     *metrics.LedgerMetrics
	Logger      *logger.Logger
}

type service struct {
	db          txRunner
	invoices    invoices.Repository
	assignments assignments.Repository
	affiliates  affiliates.Repository
	ledger      ledger.Repository
	audit       audit.Recorder
	outbox      outboxPublisher
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the accrual engine.
func NewService(params Params) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	if params.Assignments == nil {
		return nil, fmt.Errorf("assignment repository required")
	}
	if params.Affiliates == nil {
		return nil, fmt.Errorf("affiliate repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:          params.DB,
		invoices:    params.Invoices,
		assignments: params.Assignments,
		affiliates:  params.Affiliates,
		ledger:      params.Ledger,
		audit:       params.Audit,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        logg,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// AccrueEarning records the commission for one paid invoice. Replays are
// safe: a second call for the same invoice returns AlreadyAccrued without
// writing anything.
func (s *service) AccrueEarning(ctx context.Context, invoiceID uuid.UUID) (result *AccrualResult, err error) {
	ctx, span := traces.StartSpan(ctx, "accrual.accrue_earning", traces.InvoiceID(invoiceID.String()))
	defer func() { traces.End(span, err) }()

	logCtx := s.logg.WithField(ctx, "invoice_id", invoiceID.String())
	result, currency, err := s.accrue(ctx, invoiceID)
	if err != nil {
		s.metrics.ObserveAccrual(metrics.AccrualFailed, currency, 0)
		s.logg.Error(logCtx, "accrual failed", err)
		return nil, err
	}

	switch {
	case result.Accrued:
		s.metrics.ObserveAccrual(metrics.AccrualAccrued, currency, result.Entry.CommissionCents)
		logCtx = s.logg.WithFields(s.logg.WithAffiliateID(logCtx, result.Entry.AffiliateID.String()), map[string]any{
			"ledger_entry_id":  result.Entry.ID.String(),
			"commission_cents": result.Entry.CommissionCents,
			"currency":         currency,
		})
		s.logg.Info(logCtx, "earning accrued")
	case result.AlreadyAccrued:
		s.metrics.ObserveAccrual(metrics.AccrualAlreadyAccrued, currency, 0)
		s.logg.Debug(logCtx, "earning already accrued")
	default:
		s.metrics.ObserveAccrual(metrics.AccrualSkipped, currency, 0)
		s.logg.Debug(s.logg.WithField(logCtx, "reason", result.Reason), "accrual skipped")
	}
	return result, nil
}

func (s *service) accrue(ctx context.Context, invoiceID uuid.UUID) (*AccrualResult, string, error) {
	skip := func(reason string) *AccrualResult {
		return &AccrualResult{InvoiceID: invoiceID, Skipped: true, Reason: reason}
	}

	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		if db.IsNotFound(err) {
			return skip(ReasonInvoiceNotFound), "", nil
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	currency := invoice.Currency
	if invoice.Status != enums.InvoiceStatusPaid || invoice.PaidAt == nil {
		return skip(ReasonInvoiceNotPaid), currency, nil
	}

	sourceType, sourceID := invoice.RevenueSource()
	assignment, err := s.assignments.FindEffective(ctx, sourceType, sourceID, invoice.PaidAt.UTC())
	if err != nil {
		if db.IsNotFound(err) {
			return skip(ReasonNoAssignment), currency, nil
		}
		return nil, currency, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve assignment")
	}

	account, err := s.affiliates.FindByID(ctx, assignment.AffiliateID)
	if err != nil {
		if db.IsNotFound(err) {
			return skip(ReasonAffiliateNotFound), currency, nil
		}
		return nil, currency, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load affiliate")
	}
	if !account.Status.CanEarn() {
		return skip(ReasonAffiliateNotEligible), currency, nil
	}

	if existing, err := s.ledger.FindEarned(ctx, account.ID, invoice.ID); err == nil {
		return &AccrualResult{InvoiceID: invoiceID, AlreadyAccrued: true, Entry: existing}, currency, nil
	} else if !db.IsNotFound(err) {
		return nil, currency, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing accrual")
	}

	policy, err := commission.FromAssignment(assignment.CommissionType, assignment.CommissionValue, assignment.Currency)
	if err != nil {
		return nil, currency, err
	}
	split, err := policy.Split(invoice.AmountCents, invoice.Currency)
	if err != nil {
		return nil, currency, err
	}

	assignmentID := assignment.ID
	entry := &models.LedgerEntry{
		AffiliateID:     account.ID,
		InvoiceID:       &invoice.ID,
		AssignmentID:    &assignmentID,
		Type:            enums.LedgerEntryEarned,
		AmountCents:     split.CommissionCents,
		GrossCents:      split.GrossCents,
		CommissionCents: split.CommissionCents,
		NetCents:        split.NetCents,
		Currency:        split.Currency,
		OccurredAt:      invoice.PaidAt.UTC(),
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		// Status can change between the read above and this insert.
		locked, err := s.affiliates.WithTx(tx).FindByIDForUpdate(ctx, account.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock affiliate")
		}
		if !locked.Status.CanEarn() {
			return errNotEligible
		}
		if err := s.ledger.WithTx(tx).Append(ctx, entry); err != nil {
			if db.IsUniqueViolation(err, "ux_ledger_entries_earned_invoice") {
				return errAlreadyAccrued
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append earned entry")
		}
		stamped, err := s.invoices.WithTx(tx).StampSplit(ctx, invoice.ID, invoices.Split{
			AffiliateID:          account.ID,
			AssignmentID:         assignmentID,
			CommissionCents:      split.CommissionCents,
			PlatformRevenueCents: split.NetCents,
			At:                   s.now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp invoice split")
		}
		if !stamped {
			s.logg.Warn(s.logg.WithField(ctx, "invoice_id", invoice.ID.String()), "invoice split already stamped")
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			AffiliateID: account.ID,
			Action:      enums.AuditEarningAccrued,
			Metadata: map[string]any{
				"invoice_id":       invoice.ID.String(),
				"ledger_entry_id":  entry.ID.String(),
				"gross_cents":      split.GrossCents,
				"commission_cents": split.CommissionCents,
				"currency":         split.Currency,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record audit")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEarningAccrued,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   entry.ID,
			AffiliateID:   account.ID,
			OccurredAt:    entry.OccurredAt,
			Data: payloads.EarningAccruedEvent{
				LedgerEntryID:   entry.ID,
				AffiliateID:     account.ID,
				InvoiceID:       invoice.ID,
				AssignmentID:    assignmentID,
				GrossCents:      split.GrossCents,
				CommissionCents: split.CommissionCents,
				NetCents:        split.NetCents,
				Currency:        split.Currency,
				OccurredAt:      entry.OccurredAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit accrual event")
		}
		return nil
	})
	if errors.Is(err, errNotEligible) {
		return skip(ReasonAffiliateNotEligible), currency, nil
	}
	if errors.Is(err, errAlreadyAccrued) {
		// A concurrent accrual won the insert.
		existing, findErr := s.ledger.FindEarned(ctx, account.ID, invoice.ID)
		if findErr != nil {
			existing = nil
		}
		return &AccrualResult{InvoiceID: invoiceID, AlreadyAccrued: true, Entry: existing}, currency, nil
	}
	if err != nil {
		return nil, currency, err
	}
	return &AccrualResult{InvoiceID: invoiceID, Accrued: true, Entry: entry}, currency, nil
}

// AccrueBatch replays accrual for every invoice. Per-invoice failures are
// collected and do not stop the batch.
func (s *service) AccrueBatch(ctx context.Context, invoiceIDs []uuid.UUID) (BatchResult, error) {
	var (
		tally BatchResult
		errs  []error
	)
	for _, id := range invoiceIDs {
		if err := ctx.Err(); err != nil {
			return tally, multierr.Append(multierr.Combine(errs...), err)
		}
		result, err := s.AccrueEarning(ctx, id)
		if err != nil {
			tally.Failed++
			errs = append(errs, fmt.Errorf("invoice %s: %w", id, err))
			continue
		}
		switch {
		case result.Accrued:
			tally.Accrued++
		case result.AlreadyAccrued:
			tally.AlreadyAccrued++
		default:
			tally.Skipped++
		}
	}
	return tally, multierr.Combine(errs...)
}

// Backfill accrues paid invoices since paidSince that never got a split. It
// walks the whole window in pages of limit so invoices that keep being
// skipped cannot starve newer ones.
func (s *service) Backfill(ctx context.Context, paidSince time.Time, limit int) (BatchResult, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		tally BatchResult
		errs  error
		after *invoices.PaidRef
	)
	for {
		refs, err := s.invoices.ListPaidWithoutSplit(ctx, paidSince.UTC(), after, limit)
		if err != nil {
			return tally, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unsplit invoices"))
		}
		ids := make([]uuid.UUID, 0, len(refs))
		for _, ref := range refs {
			ids = append(ids, ref.ID)
		}
		page, err := s.AccrueBatch(ctx, ids)
		tally.add(page)
		if err != nil {
			errs = multierr.Append(errs, err)
			if ctx.Err() != nil {
				return tally, errs
			}
		}
		if len(refs) < limit {
			return tally, errs
		}
		last := refs[len(refs)-1]
		after = &last
	}
}

func (b *BatchResult) add(other BatchResult) {
	b.Accrued += other.Accrued
	b.AlreadyAccrued += other.AlreadyAccrued
	b.Skipped += other.Skipped
	b.Failed += other.Failed
}
