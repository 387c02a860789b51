package assignments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/internal/affiliates"
	"github.com/angelmondragon/partnerledger-backend/internal/audit"
	"github.com/angelmondragon/partnerledger-backend/internal/commission"
	"github.com/angelmondragon/partnerledger-backend/pkg/db"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox/payloads"
)

var errSourceTaken = errors.New("revenue source already assigned")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Source identifies a revenue source.
type Source struct {
	Type enums.RevenueSourceType
	ID   uuid.UUID
}

// CreateInput binds a source to an affiliate under a commission policy.
type CreateInput struct {
	AffiliateID     uuid.UUID
	Source          Source
	CommissionType  enums.CommissionType
	CommissionValue decimal.Decimal
	Currency        *string
	EffectiveFrom   *time.Time
	ActorID         uuid.UUID
}

// ListingInput describes a new marketplace listing.
type ListingInput struct {
	Name            string
	Description     *string
	PriceCents      int64
	Currency        string
	CommissionType  enums.CommissionType
	CommissionValue decimal.Decimal
}

// ListingResult pairs a listing with the assignment created for it.
type ListingResult struct {
	Listing    *models.Listing
	Assignment *models.CommissionAssignment
}

// Service manages which affiliate earns on which revenue source.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.CommissionAssignment, error)
	CreateListing(ctx context.Context, partnerID, actorID uuid.UUID, input ListingInput) (*ListingResult, error)
	AssignTenantToReseller(ctx context.Context, tenantID, resellerID, actorID uuid.UUID) (*models.CommissionAssignment, error)
	End(ctx context.Context, id, actorID uuid.UUID, reason string) (*models.CommissionAssignment, error)
	Reassign(ctx context.Context, input CreateInput, reason string) (*models.CommissionAssignment, error)
	ActiveForSource(ctx context.Context, source Source, at time.Time) (*models.CommissionAssignment, error)
	ListByAffiliate(ctx context.Context, affiliateID uuid.UUID, includeEnded bool) ([]models.CommissionAssignment, error)
}

type service struct {
	tx         txRunner
	repo       Repository
	affiliates affiliates.Repository
	audit      audit.Recorder
	outbox     outboxPublisher
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires the assignment service.
func NewService(tx txRunner, repo Repository, affiliateRepo affiliates.Repository, recorder audit.Recorder, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("assignment repository required")
	}
	if affiliateRepo == nil {
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
	return &service{
		tx:         tx,
		repo:       repo,
		affiliates: affiliateRepo,
		audit:      recorder,
		outbox:     publisher,
		logg:       logg,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.CommissionAssignment, error) {
	var created *models.CommissionAssignment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		created, err = s.createTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, s.mapCreateError(ctx, input.Source, err)
	}
	s.logCreated(ctx, created)
	return created, nil
}

func (s *service) CreateListing(ctx context.Context, partnerID, actorID uuid.UUID, input ListingInput) (*ListingResult, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing name is required")
	}
	if input.PriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be non-negative")
	}
	currency := commission.NormalizeCurrency(input.Currency)
	if len(currency) != 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3-letter ISO code")
	}

	result := &ListingResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		listing := &models.Listing{
			PartnerID:   partnerID,
			Name:        strings.TrimSpace(input.Name),
			Description: input.Description,
			PriceCents:  input.PriceCents,
			Currency:    currency,
			Active:      true,
		}
		if _, err := s.eligibleAffiliate(ctx, tx, partnerID, enums.RevenueSourceListing); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).CreateListing(ctx, listing); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create listing")
		}
		assignment, err := s.createTx(ctx, tx, CreateInput{
			AffiliateID:     partnerID,
			Source:          Source{Type: enums.RevenueSourceListing, ID: listing.ID},
			CommissionType:  input.CommissionType,
			CommissionValue: input.CommissionValue,
			ActorID:         actorID,
		})
		if err != nil {
			return err
		}
		result.Listing = listing
		result.Assignment = assignment
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logCreated(ctx, result.Assignment)
	return result, nil
}

// AssignTenantToReseller binds a tenant to a reseller using the reseller's
// default policy.
func (s *service) AssignTenantToReseller(ctx context.Context, tenantID, resellerID, actorID uuid.UUID) (*models.CommissionAssignment, error) {
	source := Source{Type: enums.RevenueSourceTenant, ID: tenantID}
	var created *models.CommissionAssignment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reseller, err := s.eligibleAffiliate(ctx, tx, resellerID, enums.RevenueSourceTenant)
		if err != nil {
			return err
		}
		if reseller.CommissionType == nil || reseller.CommissionValue == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "reseller has no default commission policy")
		}
		created, err = s.createTx(ctx, tx, CreateInput{
			AffiliateID:     resellerID,
			Source:          source,
			CommissionType:  *reseller.CommissionType,
			CommissionValue: *reseller.CommissionValue,
			ActorID:         actorID,
		})
		if err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).SetTenantReseller(ctx, tenantID, resellerID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bind tenant to reseller")
		}
		return nil
	})
	if err != nil {
		return nil, s.mapCreateError(ctx, source, err)
	}
	s.logCreated(ctx, created)
	return created, nil
}

func (s *service) End(ctx context.Context, id, actorID uuid.UUID, reason string) (*models.CommissionAssignment, error) {
	var ended *models.CommissionAssignment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		ended, err = s.endTx(ctx, tx, id, actorID, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(s.logg.WithAffiliateID(ctx, ended.AffiliateID.String()), map[string]any{
		"assignment_id": ended.ID.String(),
		"reason":        reason,
	})
	s.logg.Info(logCtx, "commission assignment ended")
	return ended, nil
}

// Reassign ends the open assignment on the source, if any, and creates the
// replacement in the same transaction. Historic invoices keep resolving to
// the assignment that was effective when they were paid.
func (s *service) Reassign(ctx context.Context, input CreateInput, reason string) (*models.CommissionAssignment, error) {
	var created *models.CommissionAssignment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.repo.WithTx(tx).FindOpenBySource(ctx, input.Source.Type, input.Source.ID)
		switch {
		case err == nil:
			ended, err := s.endTx(ctx, tx, current.ID, input.ActorID, reason)
			if err != nil {
				return err
			}
			if input.EffectiveFrom == nil || input.EffectiveFrom.Before(*ended.EffectiveTo) {
				// The replacement starts exactly where the old window closed.
				input.EffectiveFrom = ended.EffectiveTo
			}
		case isNotFound(err):
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open assignment")
		}
		created, err = s.createTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, s.mapCreateError(ctx, input.Source, err)
	}
	s.logCreated(ctx, created)
	return created, nil
}

func (s *service) ActiveForSource(ctx context.Context, source Source, at time.Time) (*models.CommissionAssignment, error) {
	if !source.Type.IsValid() || source.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid revenue source")
	}
	if at.IsZero() {
		at = s.now()
	}
	assignment, err := s.repo.FindEffective(ctx, source.Type, source.ID, at.UTC())
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no assignment effective for source")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment")
	}
	return assignment, nil
}

func (s *service) ListByAffiliate(ctx context.Context, affiliateID uuid.UUID, includeEnded bool) ([]models.CommissionAssignment, error) {
	rows, err := s.repo.ListByAffiliate(ctx, affiliateID, includeEnded)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assignments")
	}
	return rows, nil
}

func (s *service) createTx(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.CommissionAssignment, error) {
	if input.AffiliateID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "affiliate id is required")
	}
	if !input.Source.Type.IsValid() || input.Source.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid revenue source")
	}
	var currency *string
	if input.Currency != nil {
		normalized := commission.NormalizeCurrency(*input.Currency)
		if normalized != "" {
			currency = &normalized
		}
	}
	policy, err := commission.FromAssignment(input.CommissionType, input.CommissionValue, currency)
	if err != nil {
		return nil, err
	}

	account, err := s.eligibleAffiliate(ctx, tx, input.AffiliateID, input.Source.Type)
	if err != nil {
		return nil, err
	}
	if err := s.checkSource(ctx, tx, account, input.Source); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	if _, err := repo.FindOpenBySource(ctx, input.Source.Type, input.Source.ID); err == nil {
		return nil, errSourceTaken
	} else if !isNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open assignment")
	}

	effectiveFrom := s.now()
	if input.EffectiveFrom != nil {
		effectiveFrom = input.EffectiveFrom.UTC()
	}
	assignment := &models.CommissionAssignment{
		AffiliateID:     account.ID,
		SourceType:      input.Source.Type,
		SourceID:        input.Source.ID,
		CommissionType:  policy.Kind(),
		CommissionValue: policy.Value(),
		Currency:        currency,
		EffectiveFrom:   effectiveFrom,
	}
	if input.ActorID != uuid.Nil {
		actor := input.ActorID
		assignment.CreatedBy = &actor
	}
	if err := repo.Create(ctx, assignment); err != nil {
		if db.IsUniqueViolation(err, "ux_commission_assignments_active_source") {
			return nil, errSourceTaken
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create assignment")
	}

	if err := s.audit.Record(ctx, tx, audit.Entry{
		AffiliateID: account.ID,
		Action:      enums.AuditAssignmentCreated,
		ActorID:     assignment.CreatedBy,
		Metadata: map[string]any{
			"assignment_id":    assignment.ID.String(),
			"source_type":      assignment.SourceType,
			"source_id":        assignment.SourceID.String(),
			"commission_type":  assignment.CommissionType,
			"commission_value": assignment.CommissionValue.String(),
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record audit")
	}
	if err := s.emit(ctx, tx, enums.EventAssignmentCreated, assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *service) endTx(ctx context.Context, tx *gorm.DB, id, actorID uuid.UUID, reason string) (*models.CommissionAssignment, error) {
	repo := s.repo.WithTx(tx)
	assignment, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment")
	}
	if assignment.EffectiveTo != nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "assignment already ended")
	}

	end := s.now()
	if end.Before(assignment.EffectiveFrom) {
		end = assignment.EffectiveFrom
	}
	reason = strings.TrimSpace(reason)
	if err := repo.Close(ctx, assignment.ID, end, reason); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "end assignment")
	}
	assignment.EffectiveTo = &end
	if reason != "" {
		assignment.EndedReason = &reason
	}

	var actor *uuid.UUID
	if actorID != uuid.Nil {
		actor = &actorID
	}
	if err := s.audit.Record(ctx, tx, audit.Entry{
		AffiliateID: assignment.AffiliateID,
		Action:      enums.AuditAssignmentEnded,
		ActorID:     actor,
		Reason:      reason,
		Metadata:    map[string]any{"assignment_id": assignment.ID.String()},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record audit")
	}
	if err := s.emit(ctx, tx, enums.EventAssignmentEnded, assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

// eligibleAffiliate loads the account and checks it may earn on sourceType.
func (s *service) eligibleAffiliate(ctx context.Context, tx *gorm.DB, id uuid.UUID, sourceType enums.RevenueSourceType) (*models.Affiliate, error) {
	account, err := s.affiliates.WithTx(tx).FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "affiliate not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load affiliate")
	}
	if account.Kind.SourceType() != sourceType {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s accounts cannot be assigned %s sources", account.Kind, sourceType))
	}
	if !account.Status.CanEarn() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "affiliate is not eligible to earn commission").
			WithDetails(map[string]any{"status": account.Status})
	}
	return account, nil
}

func (s *service) checkSource(ctx context.Context, tx *gorm.DB, account *models.Affiliate, source Source) error {
	repo := s.repo.WithTx(tx)
	switch source.Type {
	case enums.RevenueSourceListing:
		listing, err := repo.FindListing(ctx, source.ID)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
		}
		if listing.PartnerID != account.ID {
			return pkgerrors.New(pkgerrors.CodeValidation, "listing belongs to another partner")
		}
	case enums.RevenueSourceTenant:
		if _, err := repo.FindTenant(ctx, source.ID); err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant")
		}
	}
	return nil
}

func (s *service) mapCreateError(ctx context.Context, source Source, err error) error {
	if !errors.Is(err, errSourceTaken) {
		return err
	}
	conflict := pkgerrors.New(pkgerrors.CodeConflict, "revenue source already has an active assignment")
	if open, findErr := s.repo.FindOpenBySource(ctx, source.Type, source.ID); findErr == nil {
		return conflict.WithDetails(map[string]any{
			"assignment_id": open.ID.String(),
			"affiliate_id":  open.AffiliateID.String(),
		})
	}
	return conflict
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, assignment *models.CommissionAssignment) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateAssignment,
		AggregateID:   assignment.ID,
		AffiliateID:   assignment.AffiliateID,
		Actor:         outbox.ActorFor(assignment.CreatedBy),
		Data: payloads.AssignmentEvent{
			AssignmentID:   assignment.ID,
			AffiliateID:    assignment.AffiliateID,
			SourceType:     assignment.SourceType,
			SourceID:       assignment.SourceID,
			CommissionType: assignment.CommissionType,
			Value:          assignment.CommissionValue.String(),
			EffectiveFrom:  assignment.EffectiveFrom,
			EffectiveTo:    assignment.EffectiveTo,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit assignment event")
	}
	return nil
}

func (s *service) logCreated(ctx context.Context, assignment *models.CommissionAssignment) {
	logCtx := s.logg.WithFields(s.logg.WithAffiliateID(ctx, assignment.AffiliateID.String()), map[string]any{
		"assignment_id": assignment.ID.String(),
		"source_type":   assignment.SourceType,
		"source_id":     assignment.SourceID.String(),
	})
	s.logg.Info(logCtx, "commission assignment created")
}
