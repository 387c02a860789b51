package affiliates

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/internal/audit"
	"github.com/angelmondragon/partnerledger-backend/internal/commission"
	"github.com/angelmondragon/partnerledger-backend/pkg/db"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/partnerledger-backend/pkg/pagination"
)

var errDuplicateOwner = errors.New("duplicate affiliate owner")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service manages the partner and reseller account lifecycle.
type Service interface {
	Apply(ctx context.Context, input ApplyInput) (*ApplyResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
	GetByOwner(ctx context.Context, kind enums.AffiliateKind, ownerID uuid.UUID) (*models.Affiliate, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Affiliate, error)
	List(ctx context.Context, filter ListFilter) (*ListResult, error)
	Approve(ctx context.Context, id, actorID uuid.UUID) (*models.Affiliate, error)
	Reject(ctx context.Context, id, actorID uuid.UUID, reason string) (*models.Affiliate, error)
	Suspend(ctx context.Context, id, actorID uuid.UUID, reason string) (*models.Affiliate, error)
	Reactivate(ctx context.Context, id, actorID uuid.UUID) (*models.Affiliate, error)
	UpdatePayoutPreferences(ctx context.Context, id uuid.UUID, input PayoutPreferencesInput) (*models.Affiliate, error)
}

type service struct {
	tx       txRunner
	repo     Repository
	audit    audit.Recorder
	outbox   outboxPublisher
	logg     *logger.Logger
	currency string
	now      func() time.Time
}

// NewService wires the account service. defaultCurrency applies when an
// application omits one.
func NewService(tx txRunner, repo Repository, recorder audit.Recorder, publisher outboxPublisher, logg *logger.Logger, defaultCurrency string) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("affiliate repository required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	currency := commission.NormalizeCurrency(defaultCurrency)
	if currency == "" {
		currency = "USD"
	}
	return &service{
		tx:       tx,
		repo:     repo,
		audit:    recorder,
		outbox:   publisher,
		logg:     logg,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Apply(ctx context.Context, input ApplyInput) (*ApplyResult, error) {
	if err := s.validateApply(&input); err != nil {
		return nil, err
	}

	if existing, err := s.repo.FindByOwner(ctx, input.Kind, input.OwnerID); err == nil {
		return nil, existingAccountConflict(existing.ID)
	} else if !isNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup affiliate")
	}

	account := &models.Affiliate{
		Kind:            input.Kind,
		OwnerID:         input.OwnerID,
		DisplayName:     strings.TrimSpace(input.DisplayName),
		ContactEmail:    strings.TrimSpace(input.ContactEmail),
		ContactPhone:    input.ContactPhone,
		PayoutMethod:    input.PayoutMethod,
		PayoutDetails:   input.PayoutDetails,
		CommissionType:  input.CommissionType,
		CommissionValue: input.CommissionValue,
		Currency:        input.Currency,
		Status:          InitialStatus(input.Kind),
	}
	if account.Status == enums.AffiliateStatusActive {
		approvedAt := s.now()
		account.ApprovedAt = &approvedAt
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, account); err != nil {
			if db.IsUniqueViolation(err, "ux_affiliates_kind_owner") {
				return errDuplicateOwner
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create affiliate")
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			AffiliateID: account.ID,
			Action:      enums.AuditAffiliateApplied,
			ActorID:     &input.OwnerID,
			Metadata:    map[string]any{"kind": account.Kind, "status": account.Status},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record audit")
		}
		return s.emitStatusChanged(ctx, tx, account, "", "", &input.OwnerID)
	})
	if errors.Is(err, errDuplicateOwner) {
		// Lost a race with a concurrent application for the same owner.
		if existing, findErr := s.repo.FindByOwner(ctx, input.Kind, input.OwnerID); findErr == nil {
			return nil, existingAccountConflict(existing.ID)
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "affiliate account already exists")
	}
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithAffiliateID(ctx, account.ID.String()), map[string]any{
		"kind":   account.Kind,
		"status": account.Status,
	})
	s.logg.Info(logCtx, "affiliate applied")
	return &ApplyResult{Account: account, Created: true}, nil
}

func (s *service) validateApply(input *ApplyInput) error {
	if !input.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid affiliate kind")
	}
	if input.OwnerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	if strings.TrimSpace(input.DisplayName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "display name is required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(input.ContactEmail)); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid contact email")
	}
	if input.PayoutMethod == "" {
		input.PayoutMethod = enums.PayoutMethodBankTransfer
	}
	if !input.PayoutMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payout method")
	}
	input.Currency = commission.NormalizeCurrency(input.Currency)
	if input.Currency == "" {
		input.Currency = s.currency
	}
	if len(input.Currency) != 3 {
		return pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3-letter ISO code")
	}
	if (input.CommissionType == nil) != (input.CommissionValue == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "commission type and value must be provided together")
	}
	if input.CommissionType != nil {
		if _, err := commission.FromAssignment(*input.CommissionType, *input.CommissionValue, nil); err != nil {
			return err
		}
	}
	return nil
}

func existingAccountConflict(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "affiliate account already exists").
		WithDetails(map[string]any{"affiliate_id": id.String()})
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Affiliate, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "affiliate id is required")
	}
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return account, nil
}

func (s *service) GetByOwner(ctx context.Context, kind enums.AffiliateKind, ownerID uuid.UUID) (*models.Affiliate, error) {
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid affiliate kind")
	}
	account, err := s.repo.FindByOwner(ctx, kind, ownerID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return account, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Affiliate, error) {
	accounts, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list affiliates")
	}
	return accounts, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if filter.Kind != nil && !filter.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid affiliate kind")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid affiliate status")
	}
	if _, err := pagination.ParseCursor(filter.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list affiliates")
	}
	result := &ListResult{}
	result.Accounts, result.NextCursor = pagination.Trim(rows, filter.Limit, func(a models.Affiliate) pagination.Cursor {
		return pagination.Cursor{At: a.CreatedAt, ID: a.ID}
	})
	return result, nil
}

func (s *service) Approve(ctx context.Context, id, actorID uuid.UUID) (*models.Affiliate, error) {
	return s.transition(ctx, id, actorID, enums.AuditAffiliateApproved, "")
}

func (s *service) Reject(ctx context.Context, id, actorID uuid.UUID, reason string) (*models.Affiliate, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	return s.transition(ctx, id, actorID, enums.AuditAffiliateRejected, reason)
}

func (s *service) Suspend(ctx context.Context, id, actorID uuid.UUID, reason string) (*models.Affiliate, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	return s.transition(ctx, id, actorID, enums.AuditAffiliateSuspended, reason)
}

func (s *service) Reactivate(ctx context.Context, id, actorID uuid.UUID) (*models.Affiliate, error) {
	return s.transition(ctx, id, actorID, enums.AuditAffiliateReactivated, "")
}

// transition moves an account under a row lock. Ledger entries and payouts
// are never touched here: suspension only stops future accrual.
func (s *service) transition(ctx context.Context, id, actorID uuid.UUID, action enums.AuditAction, reason string) (*models.Affiliate, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "affiliate id is required")
	}
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}
	reason = strings.TrimSpace(reason)

	var (
		account *models.Affiliate
		from    enums.AffiliateStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		account, err = repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapLookupError(err)
		}
		from = account.Status
		to, ok := nextStatus(account.Kind, account.Status, action)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("cannot %s a %s %s account", actionVerb(action), account.Status, account.Kind)).
				WithDetails(map[string]any{"status": account.Status, "kind": account.Kind})
		}

		now := s.now()
		account.Status = to
		switch to {
		case enums.AffiliateStatusApproved, enums.AffiliateStatusActive:
			if account.ApprovedAt == nil {
				account.ApprovedAt = &now
			}
			account.SuspendedAt = nil
			account.StatusReason = nil
		case enums.AffiliateStatusSuspended:
			account.SuspendedAt = &now
			account.StatusReason = &reason
		case enums.AffiliateStatusRejected:
			account.StatusReason = &reason
		}
		if err := repo.Save(ctx, account); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update affiliate")
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			AffiliateID: account.ID,
			Action:      action,
			ActorID:     &actorID,
			Reason:      reason,
			Metadata:    map[string]any{"from": from, "to": to},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record audit")
		}
		return s.emitStatusChanged(ctx, tx, account, from, reason, &actorID)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithAffiliateID(ctx, account.ID.String()), map[string]any{
		"from":     from,
		"to":       account.Status,
		"actor_id": actorID.String(),
	})
	s.logg.Info(logCtx, "affiliate status changed")
	return account, nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, account *models.Affiliate, from enums.AffiliateStatus, reason string, actorID *uuid.UUID) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventAffiliateStatusChanged,
		AggregateType: enums.AggregateAffiliate,
		AggregateID:   account.ID,
		AffiliateID:   account.ID,
		Actor:         outbox.ActorFor(actorID),
		Data: payloads.AffiliateStatusChangedEvent{
			AffiliateID: account.ID,
			Kind:        account.Kind,
			From:        from,
			To:          account.Status,
			Reason:      reason,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit affiliate event")
	}
	return nil
}

func (s *service) UpdatePayoutPreferences(ctx context.Context, id uuid.UUID, input PayoutPreferencesInput) (*models.Affiliate, error) {
	method := input.PayoutMethod
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout method")
	}

	var account *models.Affiliate
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		account, err = repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapLookupError(err)
		}
		if account.Status == enums.AffiliateStatusRejected {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "rejected accounts cannot be updated")
		}
		account.PayoutMethod = method
		account.PayoutDetails = input.PayoutDetails
		if err := repo.Save(ctx, account); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout preferences")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func mapLookupError(err error) error {
	if isNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "affiliate not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load affiliate")
}

func actionVerb(action enums.AuditAction) string {
	switch action {
	case enums.AuditAffiliateApproved:
		return "approve"
	case enums.AuditAffiliateRejected:
		return "reject"
	case enums.AuditAffiliateSuspended:
		return "suspend"
	case enums.AuditAffiliateReactivated:
		return "reactivate"
	default:
		return string(action)
	}
}
