package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/internal/accrual"
	"github.com/angelmondragon/partnerledger-backend/internal/affiliates"
	"github.com/angelmondragon/partnerledger-backend/internal/assignments"
	"github.com/angelmondragon/partnerledger-backend/internal/audit"
	"github.com/angelmondragon/partnerledger-backend/internal/invoices"
	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	"github.com/angelmondragon/partnerledger-backend/internal/testdb"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	client := testdb.New(t)
	conn := client.DB()

	invoiceRepo := invoices.NewRepository(conn)
	invoiceSvc, err := invoices.NewService(invoiceRepo)
	require.NoError(t, err)
	accrualSvc, err := accrual.NewService(accrual.Params{
		DB:          client,
		Invoices:    invoiceRepo,
		Assignments: assignments.NewRepository(conn),
		Affiliates:  affiliates.NewRepository(conn),
		Ledger:      ledger.NewRepository(conn),
		Audit:       audit.NewRepository(conn),
		Outbox:      outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{Invoices: invoiceSvc, Accrual: accrualSvc})
	require.NoError(t, err)
	return svc, conn
}

func invoiceEvent(t *testing.T, eventType stripe.EventType, inv stripe.Invoice) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(inv)
	require.NoError(t, err)
	return &stripe.Event{
		ID:      "evt_" + uuid.NewString(),
		Type:    eventType,
		Created: time.Now().Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
}

func TestInvoicePaidAccruesOnce(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	partner := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	listing := testdb.SeedListing(t, conn, partner.ID)
	tenant := testdb.SeedTenant(t, conn, nil)
	testdb.SeedAssignment(t, conn, partner.ID, enums.RevenueSourceListing, listing.ID,
		enums.CommissionTypePercent, decimal.NewFromInt(30), time.Now().UTC().Add(-24*time.Hour))

	paidAt := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	inv := stripe.Invoice{
		ID:         "in_" + uuid.NewString()[:12],
		AmountPaid: 10000,
		AmountDue:  10000,
		Currency:   stripe.CurrencyUSD,
		Metadata: map[string]string{
			MetadataTenantID:  tenant.ID.String(),
			MetadataListingID: listing.ID.String(),
		},
		StatusTransitions: &stripe.InvoiceStatusTransitions{PaidAt: paidAt.Unix()},
	}

	require.NoError(t, svc.HandleEvent(ctx, invoiceEvent(t, stripe.EventTypeInvoicePaid, inv)))
	require.NoError(t, svc.HandleEvent(ctx, invoiceEvent(t, stripe.EventTypeInvoicePaid, inv)))

	var entries []models.LedgerEntry
	require.NoError(t, conn.Where("affiliate_id = ?", partner.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 3000, entries[0].CommissionCents)
	assert.EqualValues(t, 7000, entries[0].NetCents)
	assert.True(t, entries[0].OccurredAt.Equal(paidAt))

	var mirrored models.Invoice
	require.NoError(t, conn.Where("external_id = ?", inv.ID).First(&mirrored).Error)
	assert.Equal(t, enums.InvoiceStatusPaid, mirrored.Status)
	assert.Equal(t, "USD", mirrored.Currency)
	assert.NotNil(t, mirrored.SplitAt)
}

func TestInvoiceVoidedOnlyUpdatesMirror(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	tenant := testdb.SeedTenant(t, conn, nil)

	inv := stripe.Invoice{
		ID:        "in_void",
		AmountDue: 4200,
		Currency:  stripe.CurrencyEUR,
		Metadata:  map[string]string{MetadataTenantID: tenant.ID.String()},
	}
	require.NoError(t, svc.HandleEvent(ctx, invoiceEvent(t, stripe.EventTypeInvoiceVoided, inv)))

	var mirrored models.Invoice
	require.NoError(t, conn.Where("external_id = ?", "in_void").First(&mirrored).Error)
	assert.Equal(t, enums.InvoiceStatusVoid, mirrored.Status)
	assert.Nil(t, mirrored.PaidAt)
	assert.EqualValues(t, 0, testdb.CountRows(t, conn, "ledger_entries"))

	require.NoError(t, svc.HandleEvent(ctx, invoiceEvent(t, stripe.EventTypeInvoiceMarkedUncollectible, inv)))
	require.NoError(t, conn.Where("external_id = ?", "in_void").First(&mirrored).Error)
	assert.Equal(t, enums.InvoiceStatusUncollectible, mirrored.Status)
}

func TestHandleEventIgnoresForeignAndUnknownEvents(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	foreign := stripe.Invoice{ID: "in_other", AmountPaid: 100, Currency: stripe.CurrencyUSD}
	require.NoError(t, svc.HandleEvent(ctx, invoiceEvent(t, stripe.EventTypeInvoicePaid, foreign)))
	require.NoError(t, svc.HandleEvent(ctx, invoiceEvent(t, stripe.EventTypeCustomerCreated, foreign)))
	assert.EqualValues(t, 0, testdb.CountRows(t, conn, "invoices"))

	err := svc.HandleEvent(ctx, &stripe.Event{Type: stripe.EventTypeInvoicePaid})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	bad := stripe.Invoice{ID: "in_bad", Metadata: map[string]string{MetadataTenantID: "not-a-uuid"}}
	err = svc.HandleEvent(ctx, invoiceEvent(t, stripe.EventTypeInvoicePaid, bad))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}

func TestDeferredAccrualOnlyMirrors(t *testing.T) {
	client := testdb.New(t)
	conn := client.DB()
	invoiceSvc, err := invoices.NewService(invoices.NewRepository(conn))
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{Invoices: invoiceSvc, Accrual: panicAccruer{}, DeferAccrual: true})
	require.NoError(t, err)

	tenant := testdb.SeedTenant(t, conn, nil)
	inv := stripe.Invoice{
		ID:         "in_deferred",
		AmountPaid: 900,
		Currency:   stripe.CurrencyUSD,
		Metadata:   map[string]string{MetadataTenantID: tenant.ID.String()},
	}
	require.NoError(t, svc.HandleEvent(context.Background(), invoiceEvent(t, stripe.EventTypeInvoicePaid, inv)))

	var mirrored models.Invoice
	require.NoError(t, conn.Where("external_id = ?", "in_deferred").First(&mirrored).Error)
	assert.Equal(t, enums.InvoiceStatusPaid, mirrored.Status)
	assert.Nil(t, mirrored.SplitAt)
}

type panicAccruer struct{}

func (panicAccruer) AccrueEarning(context.Context, uuid.UUID) (*accrual.AccrualResult, error) {
	panic("accrual must be deferred")
}
