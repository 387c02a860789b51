// Package payouts settles unsettled ledger balances through the
// owed -> approved -> paid workflow.
package payouts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/internal/affiliates"
	"github.com/angelmondragon/partnerledger-backend/internal/audit"
	"github.com/angelmondragon/partnerledger-backend/internal/commission"
	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	"github.com/angelmondragon/partnerledger-backend/pkg/db"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
	"github.com/angelmondragon/partnerledger-backend/pkg/metrics"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/partnerledger-backend/pkg/pagination"
	"github.com/angelmondragon/partnerledger-backend/pkg/traces"
)

var (
	errOutstandingExists = errors.New("affiliate already has an outstanding payout")
	errEntriesClaimed    = errors.New("ledger entries already claimed by a payout")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Disburser moves money to an external account. Implementations must treat
// IdempotencyKey as the unit of deduplication.
type Disburser interface {
	Disburse(ctx context.Context, req DisbursementRequest) (string, error)
}

// DisbursementRequest describes one outbound transfer.
type DisbursementRequest struct {
	PayoutID       uuid.UUID
	AffiliateID    uuid.UUID
	AmountCents    int64
	Currency       string
	Destination    string
	IdempotencyKey string
}

// GenerateInput narrows which unsettled entries a payout consumes.
type GenerateInput struct {
	Window   ledger.Window
	Currency string
	ActorID  *uuid.UUID
}

// SettleInput records how an approved payout left the platform. Reference is
// filled from the transfer id for stripe_connect.
type SettleInput struct {
	Method    enums.PayoutMethod
	Reference string
}

// QueuePage is one page of the review queue.
type QueuePage struct {
	Payouts    []models.Payout `json:"payouts"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Service runs payout generation and its state machine.
type Service interface {
	Generate(ctx context.Context, affiliateID uuid.UUID, input GenerateInput) (*models.Payout, error)
	Approve(ctx context.Context, id, reviewerID uuid.UUID) (*models.Payout, error)
	Settle(ctx context.Context, id uuid.UUID, input SettleInput, actorID uuid.UUID) (*models.Payout, error)
	Void(ctx context.Context, id uuid.UUID, reason string, actorID uuid.UUID) (*models.Payout, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	ListByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.Payout, error)
	ListByStatus(ctx context.Context, status enums.PayoutStatus, params pagination.Params) (*QueuePage, error)
}

// Params wires the payout service. Disburser is optional; without it
// stripe_connect settlement is refused.
type Params struct {
	DB         txRunner
	Payouts    Repository
	Ledger     ledger.Repository
	Affiliates affiliates.Repository
	Audit      audit.Recorder
	Outbox     outboxPublisher
	Disburser  Disburser
	Metrics    *metrics.LedgerMetrics
	Logger     *logger.Logger
}

type service struct {
	db         txRunner
	repo       Repository
	ledger     ledger.Repository
	affiliates affiliates.Repository
	audit      audit.Recorder
	outbox     outboxPublisher
	disburser  Disburser
	metrics    *metrics.LedgerMetrics
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the payout service.
func NewService(params Params) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Affiliates == nil {
		return nil, fmt.Errorf("affiliate repository required")
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
		db:         params.DB,
		repo:       params.Payouts,
		ledger:     params.Ledger,
		affiliates: params.Affiliates,
		audit:      params.Audit,
		outbox:     params.Outbox,
		disburser:  params.Disburser,
		metrics:    params.Metrics,
		logg:       logg,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Generate consumes the affiliate's unsettled entries into a new owed payout.
func (s *service) Generate(ctx context.Context, affiliateID uuid.UUID, input GenerateInput) (payout *models.Payout, err error) {
	ctx, span := traces.StartSpan(ctx, "payouts.generate", traces.AffiliateID(affiliateID.String()))
	defer func() { traces.End(span, err) }()

	if affiliateID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "affiliate id is required")
	}
	if err := input.Window.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid window")
	}
	requested := commission.NormalizeCurrency(input.Currency)
	if requested != "" && len(requested) != 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3-letter ISO code")
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.affiliates.WithTx(tx).FindByIDForUpdate(ctx, affiliateID); err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "affiliate not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock affiliate")
		}

		repo := s.repo.WithTx(tx)
		if existing, err := repo.FindOutstanding(ctx, affiliateID); err == nil {
			return outstandingConflict(existing.ID)
		} else if !db.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check outstanding payout")
		}

		candidates, err := s.ledger.WithTx(tx).LockUnsettled(ctx, affiliateID, input.Window)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock unsettled entries")
		}
		entries, currency, err := selectCurrency(candidates, requested)
		if err != nil {
			return err
		}
		sums := sum(entries)
		if len(entries) == 0 || sums.net <= 0 {
			return pkgerrors.New(pkgerrors.CodeNothingOwed, "nothing owed").WithDetails(map[string]any{
				"affiliate_id":      affiliateID.String(),
				"net_payable_cents": sums.net,
			})
		}

		payout = &models.Payout{
			AffiliateID:           affiliateID,
			PeriodStart:           utcPtr(input.Window.Start),
			PeriodEnd:             utcPtr(input.Window.End),
			GrossRevenueCents:     sums.gross,
			CommissionEarnedCents: sums.commission,
			AdjustmentsCents:      sums.adjustments,
			NetPayableCents:       sums.net,
			Currency:              currency,
			Status:                enums.PayoutStatusOwed,
			EntryCount:            len(entries),
		}
		if err := repo.Create(ctx, payout); err != nil {
			if db.IsUniqueViolation(err, "ux_payouts_outstanding_affiliate") {
				return errOutstandingExists
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}
		ids := make([]uuid.UUID, 0, len(entries))
		for _, entry := range entries {
			ids = append(ids, entry.ID)
		}
		if err := repo.InsertEntries(ctx, payout.ID, ids); err != nil {
			if db.IsUniqueViolation(err, "ux_payout_entries_unreleased_entry") {
				return errEntriesClaimed
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim ledger entries")
		}
		return s.recordTransition(ctx, tx, payout, enums.AuditPayoutGenerated, enums.EventPayoutGenerated, input.ActorID, "")
	})
	if errors.Is(err, errOutstandingExists) || errors.Is(err, errEntriesClaimed) {
		if existing, findErr := s.repo.FindOutstanding(ctx, affiliateID); findErr == nil {
			return nil, outstandingConflict(existing.ID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payout already in progress")
	}
	if err != nil {
		return nil, err
	}

	s.metrics.ObservePayoutGenerated(payout.Currency, payout.NetPayableCents)
	s.logTransition(ctx, payout, "payout generated")
	return payout, nil
}

// Approve moves an owed payout to approved.
func (s *service) Approve(ctx context.Context, id, reviewerID uuid.UUID) (*models.Payout, error) {
	if reviewerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reviewer id is required")
	}
	var payout *models.Payout
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		payout, err = s.lockInState(ctx, tx, id, enums.PayoutStatusOwed)
		if err != nil {
			return err
		}
		now := s.now()
		reviewer := reviewerID
		payout.Status = enums.PayoutStatusApproved
		payout.ApprovedAt = &now
		payout.ApprovedBy = &reviewer
		if err := s.repo.WithTx(tx).Save(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve payout")
		}
		return s.recordTransition(ctx, tx, payout, enums.AuditPayoutApproved, enums.EventPayoutApproved, &reviewer, "")
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePayoutTransition(string(enums.PayoutStatusApproved))
	s.logTransition(ctx, payout, "payout approved")
	return payout, nil
}

// Settle marks an approved payout paid and appends the matching negative
// ledger entry. stripe_connect payouts are transferred first.
func (s *service) Settle(ctx context.Context, id uuid.UUID, input SettleInput, actorID uuid.UUID) (payout *models.Payout, err error) {
	ctx, span := traces.StartSpan(ctx, "payouts.settle", traces.PayoutID(id.String()))
	defer func() { traces.End(span, err) }()

	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payout method %q", input.Method))
	}
	reference := strings.TrimSpace(input.Reference)

	stripe := input.Method == enums.PayoutMethodStripeConnect
	if stripe {
		transferID, err := s.disburse(ctx, id)
		if err != nil {
			return nil, err
		}
		reference = transferID
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		payout, err = s.lockInState(ctx, tx, id, enums.PayoutStatusApproved)
		if err != nil {
			return err
		}
		if payout.DisbursingAt != nil && !stripe {
			return transferInFlight(payout)
		}
		now := s.now()
		method := input.Method
		payout.Status = enums.PayoutStatusPaid
		payout.PaidAt = &now
		payout.PayoutMethod = &method
		payout.DisbursingAt = nil
		if reference != "" {
			payout.PayoutReference = &reference
		}
		if err := s.repo.WithTx(tx).Save(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle payout")
		}

		actor := actorID
		payoutID := payout.ID
		if err := s.ledger.WithTx(tx).Append(ctx, &models.LedgerEntry{
			AffiliateID: payout.AffiliateID,
			PayoutID:    &payoutID,
			Type:        enums.LedgerEntryPayout,
			AmountCents: -payout.NetPayableCents,
			Currency:    payout.Currency,
			ActorID:     &actor,
			Reason:      payout.PayoutReference,
			OccurredAt:  now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payout entry")
		}
		return s.recordTransition(ctx, tx, payout, enums.AuditPayoutPaid, enums.EventPayoutPaid, &actor, "")
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePayoutTransition(string(enums.PayoutStatusPaid))
	s.logTransition(ctx, payout, "payout settled")
	return payout, nil
}

// Void cancels an outstanding payout and releases its entries.
func (s *service) Void(ctx context.Context, id uuid.UUID, reason string, actorID uuid.UUID) (*models.Payout, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	var payout *models.Payout
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		payout, err = s.lockInState(ctx, tx, id, enums.OutstandingPayoutStatuses...)
		if err != nil {
			return err
		}
		if payout.DisbursingAt != nil {
			return transferInFlight(payout)
		}
		now := s.now()
		repo := s.repo.WithTx(tx)
		if _, err := repo.ReleaseEntries(ctx, payout.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release ledger entries")
		}
		payout.Status = enums.PayoutStatusVoid
		payout.VoidedAt = &now
		payout.VoidReason = &reason
		if err := repo.Save(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "void payout")
		}
		actor := actorID
		return s.recordTransition(ctx, tx, payout, enums.AuditPayoutVoided, enums.EventPayoutVoided, &actor, reason)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePayoutTransition(string(enums.PayoutStatusVoid))
	s.logTransition(ctx, payout, "payout voided")
	return payout, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return payout, nil
}

func (s *service) ListByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.Payout, error) {
	payouts, err := s.repo.ListByAffiliate(ctx, affiliateID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	if payouts == nil {
		payouts = []models.Payout{}
	}
	return payouts, nil
}

func (s *service) ListByStatus(ctx context.Context, status enums.PayoutStatus, params pagination.Params) (*QueuePage, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payout status %q", status))
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByStatus(ctx, status, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout queue")
	}
	page := &QueuePage{}
	page.Payouts, page.NextCursor = pagination.Trim(rows, params.Limit, func(p models.Payout) pagination.Cursor {
		return pagination.Cursor{At: p.CreatedAt, ID: p.ID}
	})
	return page, nil
}

func (s *service) lockInState(ctx context.Context, tx *gorm.DB, id uuid.UUID, allowed ...enums.PayoutStatus) (*models.Payout, error) {
	payout, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payout")
	}
	for _, status := range allowed {
		if payout.Status == status {
			return payout, nil
		}
	}
	return nil, invalidTransition(payout, allowed...)
}

// disburse claims the approved payout for a transfer, moves the money and
// returns the transfer id. The claim blocks Void and manual settlement until
// the payout is settled or the transfer fails. A claim left behind by a crash
// is resumed by settling through stripe_connect again; the idempotency key
// keeps the transfer single.
func (s *service) disburse(ctx context.Context, id uuid.UUID) (string, error) {
	if s.disburser == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "stripe disbursals are not enabled")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if current.Status != enums.PayoutStatusApproved {
		return "", invalidTransition(current, enums.PayoutStatusApproved)
	}
	account, err := s.affiliates.FindByID(ctx, current.AffiliateID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load affiliate")
	}
	destination, err := stripeDestination(account.PayoutDetails)
	if err != nil {
		return "", err
	}

	var payout *models.Payout
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		payout, err = s.lockInState(ctx, tx, id, enums.PayoutStatusApproved)
		if err != nil {
			return err
		}
		now := s.now()
		payout.DisbursingAt = &now
		if err := s.repo.WithTx(tx).Save(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim payout for transfer")
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	transferID, err := s.disburser.Disburse(ctx, DisbursementRequest{
		PayoutID:       payout.ID,
		AffiliateID:    payout.AffiliateID,
		AmountCents:    payout.NetPayableCents,
		Currency:       payout.Currency,
		Destination:    destination,
		IdempotencyKey: "payout-" + payout.ID.String(),
	})
	if err != nil {
		if releaseErr := s.releaseTransferClaim(ctx, id); releaseErr != nil {
			s.logg.Error(s.logg.WithAffiliateID(ctx, payout.AffiliateID.String()), "release transfer claim", releaseErr)
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "disburse payout")
	}
	return transferID, nil
}

// releaseTransferClaim clears the in-flight mark after a failed transfer so
// the payout can be retried or voided.
func (s *service) releaseTransferClaim(ctx context.Context, id uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		payout, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if payout.Status != enums.PayoutStatusApproved || payout.DisbursingAt == nil {
			return nil
		}
		payout.DisbursingAt = nil
		return s.repo.WithTx(tx).Save(ctx, payout)
	})
}

func (s *service) recordTransition(ctx context.Context, tx *gorm.DB, payout *models.Payout, action enums.AuditAction, event enums.OutboxEventType, actorID *uuid.UUID, reason string) error {
	metadata := map[string]any{
		"payout_id":         payout.ID.String(),
		"status":            string(payout.Status),
		"net_payable_cents": payout.NetPayableCents,
		"currency":          payout.Currency,
		"entry_count":       payout.EntryCount,
	}
	if payout.PayoutReference != nil {
		metadata["payout_reference"] = *payout.PayoutReference
	}
	if err := s.audit.Record(ctx, tx, audit.Entry{
		AffiliateID: payout.AffiliateID,
		Action:      action,
		ActorID:     actorID,
		Reason:      reason,
		Metadata:    metadata,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record audit")
	}
	data := payloads.PayoutEvent{
		PayoutID:        payout.ID,
		AffiliateID:     payout.AffiliateID,
		Status:          payout.Status,
		NetPayableCents: payout.NetPayableCents,
		Currency:        payout.Currency,
		EntryCount:      payout.EntryCount,
		Method:          payout.PayoutMethod,
		Reference:       payout.PayoutReference,
	}
	if reason != "" {
		data.Reason = &reason
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		AffiliateID:   payout.AffiliateID,
		Actor:         outbox.ActorFor(actorID),
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payout event")
	}
	return nil
}

func (s *service) logTransition(ctx context.Context, payout *models.Payout, msg string) {
	logCtx := s.logg.WithFields(s.logg.WithAffiliateID(ctx, payout.AffiliateID.String()), map[string]any{
		"payout_id":         payout.ID.String(),
		"status":            string(payout.Status),
		"net_payable_cents": payout.NetPayableCents,
		"currency":          payout.Currency,
	})
	s.logg.Info(logCtx, msg)
}

type totals struct {
	gross       int64
	commission  int64
	adjustments int64
	net         int64
}

func sum(entries []models.LedgerEntry) totals {
	var t totals
	for _, entry := range entries {
		switch entry.Type {
		case enums.LedgerEntryEarned:
			t.gross += entry.GrossCents
			t.commission += entry.CommissionCents
		case enums.LedgerEntryAdjustment:
			t.adjustments += entry.AmountCents
		}
	}
	t.net = t.commission + t.adjustments
	return t
}

// selectCurrency keeps the entries in one currency. Without a requested
// currency the candidates must already agree.
func selectCurrency(entries []models.LedgerEntry, requested string) ([]models.LedgerEntry, string, error) {
	if requested != "" {
		filtered := make([]models.LedgerEntry, 0, len(entries))
		for _, entry := range entries {
			if entry.Currency == requested {
				filtered = append(filtered, entry)
			}
		}
		return filtered, requested, nil
	}
	seen := map[string]struct{}{}
	for _, entry := range entries {
		seen[entry.Currency] = struct{}{}
	}
	if len(seen) > 1 {
		currencies := make([]string, 0, len(seen))
		for c := range seen {
			currencies = append(currencies, c)
		}
		sort.Strings(currencies)
		return nil, "", pkgerrors.New(pkgerrors.CodeCurrency, "unsettled entries span multiple currencies; pick one").
			WithDetails(map[string]any{"currencies": currencies})
	}
	for c := range seen {
		return entries, c, nil
	}
	return entries, "", nil
}

func stripeDestination(raw json.RawMessage) (string, error) {
	var details struct {
		StripeAccountID string `json:"stripe_account_id"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &details); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout details")
		}
	}
	if strings.TrimSpace(details.StripeAccountID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payout details missing stripe_account_id")
	}
	return details.StripeAccountID, nil
}

func outstandingConflict(payoutID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "affiliate already has an outstanding payout").
		WithDetails(map[string]any{"payout_id": payoutID.String()})
}

func transferInFlight(payout *models.Payout) error {
	return pkgerrors.New(pkgerrors.CodeInvalidState, "payout transfer is in flight").
		WithDetails(map[string]any{
			"payout_id":     payout.ID.String(),
			"status":        string(payout.Status),
			"disbursing_at": payout.DisbursingAt.UTC().Format(time.RFC3339),
		})
}

func invalidTransition(payout *models.Payout, want ...enums.PayoutStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("payout is %s", payout.Status)).
		WithDetails(map[string]any{
			"payout_id": payout.ID.String(),
			"status":    string(payout.Status),
			"allowed":   want,
		})
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
