package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"

	"github.com/angelmondragon/partnerledger-backend/internal/accrual"
	"github.com/angelmondragon/partnerledger-backend/internal/invoices"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

// Invoice metadata keys set by the billing side when the invoice is created.
const (
	MetadataTenantID  = "tenant_id"
	MetadataListingID = "listing_id"
)

type invoiceRecorder interface {
	Record(ctx context.Context, input invoices.MirrorInput) (*models.Invoice, error)
}

type earningAccruer interface {
	AccrueEarning(ctx context.Context, invoiceID uuid.UUID) (*accrual.AccrualResult, error)
}

// ServiceParams wires the webhook service. With DeferAccrual set, paid
// invoices are only mirrored and the accrual-backfill job splits them.
type ServiceParams struct {
	Invoices     invoiceRecorder
	Accrual      earningAccruer
	Logger       *logger.Logger
	DeferAccrual bool
}

type Service struct {
	invoices     invoiceRecorder
	accrual      earningAccruer
	logg         *logger.Logger
	deferAccrual bool
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Invoices == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoice service required")
	}
	if params.Accrual == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "accrual service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		invoices:     params.Invoices,
		accrual:      params.Accrual,
		logg:         logg,
		deferAccrual: params.DeferAccrual,
	}, nil
}

// HandleEvent mirrors invoice lifecycle events. Only invoice.paid reaches
// the ledger; voids and uncollectible marks update the mirror status.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var status enums.InvoiceStatus
	switch event.Type {
	case stripe.EventTypeInvoicePaid:
		status = enums.InvoiceStatusPaid
	case stripe.EventTypeInvoiceVoided:
		status = enums.InvoiceStatusVoid
	case stripe.EventTypeInvoiceMarkedUncollectible:
		status = enums.InvoiceStatusUncollectible
	default:
		return nil
	}

	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice event")
	}
	input, ok, err := mirrorInput(&inv, status, event.Created)
	if err != nil {
		return err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_invoice_id": inv.ID,
	})
	if !ok {
		s.logg.Warn(logCtx, "invoice has no tenant metadata; ignoring")
		return nil
	}

	mirrored, err := s.invoices.Record(ctx, input)
	if err != nil {
		return err
	}
	if status != enums.InvoiceStatusPaid || s.deferAccrual {
		s.logg.Info(s.logg.WithField(logCtx, "status", string(status)), "invoice mirror updated")
		return nil
	}

	result, err := s.accrual.AccrueEarning(ctx, mirrored.ID)
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"invoice_id":      mirrored.ID.String(),
		"accrued":         result.Accrued,
		"already_accrued": result.AlreadyAccrued,
		"skip_reason":     result.Reason,
	}), "invoice paid processed")
	return nil
}

// mirrorInput maps a Stripe invoice onto the local mirror. ok is false when
// the invoice carries no tenant, which means it was not issued for a tenant
// of this platform.
func mirrorInput(inv *stripe.Invoice, status enums.InvoiceStatus, eventCreated int64) (invoices.MirrorInput, bool, error) {
	if strings.TrimSpace(inv.ID) == "" {
		return invoices.MirrorInput{}, false, pkgerrors.New(pkgerrors.CodeValidation, "invoice id missing")
	}
	rawTenant := strings.TrimSpace(inv.Metadata[MetadataTenantID])
	if rawTenant == "" {
		return invoices.MirrorInput{}, false, nil
	}
	tenantID, err := uuid.Parse(rawTenant)
	if err != nil {
		return invoices.MirrorInput{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tenant_id metadata")
	}
	input := invoices.MirrorInput{
		ExternalID:  inv.ID,
		TenantID:    tenantID,
		AmountCents: inv.AmountPaid,
		Currency:    string(inv.Currency),
		Status:      status,
	}
	if status != enums.InvoiceStatusPaid {
		input.AmountCents = inv.AmountDue
	}
	if rawListing := strings.TrimSpace(inv.Metadata[MetadataListingID]); rawListing != "" {
		listingID, err := uuid.Parse(rawListing)
		if err != nil {
			return invoices.MirrorInput{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid listing_id metadata")
		}
		input.ListingID = &listingID
	}
	if status == enums.InvoiceStatusPaid {
		paidAt := eventCreated
		if inv.StatusTransitions != nil && inv.StatusTransitions.PaidAt > 0 {
			paidAt = inv.StatusTransitions.PaidAt
		}
		if paidAt > 0 {
			at := time.Unix(paidAt, 0).UTC()
			input.PaidAt = &at
		}
	}
	return input, true, nil
}
