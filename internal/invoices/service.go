package invoices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partnerledger-backend/internal/commission"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
)

// MirrorInput is the processor's view of an invoice.
type MirrorInput struct {
	ExternalID  string
	TenantID    uuid.UUID
	ListingID   *uuid.UUID
	AmountCents int64
	Currency    string
	Status      enums.InvoiceStatus
	PaidAt      *time.Time
}

// Service maintains the local invoice mirror.
type Service interface {
	Record(ctx context.Context, input MirrorInput) (*models.Invoice, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
}

type service struct {
	repo Repository
}

// NewService wires the invoice mirror service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, input MirrorInput) (*models.Invoice, error) {
	externalID := strings.TrimSpace(input.ExternalID)
	if externalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external invoice id is required")
	}
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if input.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice amount must be non-negative")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid invoice status")
	}
	currency := commission.NormalizeCurrency(input.Currency)
	if len(currency) != 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3-letter ISO code")
	}

	invoice := &models.Invoice{
		ExternalID:  externalID,
		TenantID:    input.TenantID,
		ListingID:   input.ListingID,
		AmountCents: input.AmountCents,
		Currency:    currency,
		Status:      input.Status,
	}
	if input.PaidAt != nil {
		paidAt := input.PaidAt.UTC()
		invoice.PaidAt = &paidAt
	} else if input.Status == enums.InvoiceStatusPaid {
		paidAt := time.Now().UTC()
		invoice.PaidAt = &paidAt
	}
	if err := s.repo.Upsert(ctx, invoice); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert invoice")
	}
	return invoice, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return invoice, nil
}
