package statements

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/internal/affiliates"
	"github.com/angelmondragon/partnerledger-backend/internal/audit"
	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	"github.com/angelmondragon/partnerledger-backend/internal/payouts"
	"github.com/angelmondragon/partnerledger-backend/internal/testdb"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
	"github.com/angelmondragon/partnerledger-backend/pkg/pagination"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	client := testdb.New(t)
	conn := client.DB()
	recorder := audit.NewRepository(conn)
	publisher := outbox.NewService(outbox.NewRepository(conn), nil)

	ledgerSvc, err := ledger.NewService(client, ledger.NewRepository(conn), affiliates.NewRepository(conn), recorder, publisher, nil)
	require.NoError(t, err)
	payoutSvc, err := payouts.NewService(payouts.Params{
		DB:         client,
		Payouts:    payouts.NewRepository(conn),
		Ledger:     ledger.NewRepository(conn),
		Affiliates: affiliates.NewRepository(conn),
		Audit:      recorder,
		Outbox:     publisher,
	})
	require.NoError(t, err)
	svc, err := NewService(NewRepository(conn), ledgerSvc, payoutSvc)
	require.NoError(t, err)
	return svc, conn
}

func seedEarned(t *testing.T, conn *gorm.DB, affiliateID uuid.UUID, invoiceID uuid.UUID, grossCents, commissionCents int64, currency string, at time.Time) {
	t.Helper()
	testdb.SeedEntry(t, conn, models.LedgerEntry{
		AffiliateID:     affiliateID,
		InvoiceID:       &invoiceID,
		Type:            enums.LedgerEntryEarned,
		AmountCents:     commissionCents,
		GrossCents:      grossCents,
		CommissionCents: commissionCents,
		NetCents:        grossCents - commissionCents,
		Currency:        currency,
		OccurredAt:      at,
	})
}

func TestGetStatementTotalsPerCurrency(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindReseller, enums.AffiliateStatusActive)
	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	seedEarned(t, conn, account.ID, uuid.New(), 10000, 2000, "USD", march.Add(24*time.Hour))
	seedEarned(t, conn, account.ID, uuid.New(), 5000, 1000, "USD", march.Add(48*time.Hour))
	seedEarned(t, conn, account.ID, uuid.New(), 8000, 1600, "EUR", march.Add(72*time.Hour))
	seedEarned(t, conn, account.ID, uuid.New(), 9999, 1999, "USD", april.Add(time.Hour))

	actor := uuid.New()
	reason := "refund clawback"
	testdb.SeedEntry(t, conn, models.LedgerEntry{
		AffiliateID: account.ID,
		Type:        enums.LedgerEntryAdjustment,
		AmountCents: -300,
		Currency:    "USD",
		ActorID:     &actor,
		Reason:      &reason,
		OccurredAt:  march.Add(96 * time.Hour),
	})
	payoutID := uuid.New()
	testdb.SeedEntry(t, conn, models.LedgerEntry{
		AffiliateID: account.ID,
		PayoutID:    &payoutID,
		Type:        enums.LedgerEntryPayout,
		AmountCents: -2700,
		Currency:    "USD",
		OccurredAt:  march.Add(120 * time.Hour),
	})

	statement, err := svc.GetStatement(ctx, account.ID, ledger.Window{Start: &march, End: &april})
	require.NoError(t, err)
	require.Len(t, statement.Totals, 2)

	eur := statement.Totals[0]
	assert.Equal(t, "EUR", eur.Currency)
	assert.EqualValues(t, 8000, eur.GrossCents)
	assert.EqualValues(t, 1600, eur.CommissionCents)
	assert.EqualValues(t, 1, eur.InvoiceCount)

	usd := statement.Totals[1]
	assert.Equal(t, "USD", usd.Currency)
	assert.EqualValues(t, 15000, usd.GrossCents)
	assert.EqualValues(t, 3000, usd.CommissionCents)
	assert.EqualValues(t, 12000, usd.NetCents)
	assert.EqualValues(t, -300, usd.AdjustmentsCents)
	assert.EqualValues(t, 2700, usd.PayoutsPaidCents)
	assert.EqualValues(t, 4, usd.EntryCount)
	assert.EqualValues(t, 2, usd.InvoiceCount)
	assert.Equal(t, &march, statement.PeriodStart)
}

func TestGetStatementEmptyIsZero(t *testing.T) {
	svc, _ := newTestService(t)
	statement, err := svc.GetStatement(context.Background(), uuid.New(), ledger.Window{})
	require.NoError(t, err)
	assert.NotNil(t, statement.Totals)
	assert.Empty(t, statement.Totals)

	start := time.Now().UTC()
	end := start.Add(-time.Hour)
	_, err = svc.GetStatement(context.Background(), uuid.New(), ledger.Window{Start: &start, End: &end})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListEarningsOnlyReturnsEarnedEntries(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)

	at := time.Now().UTC().Add(-time.Hour)
	seedEarned(t, conn, account.ID, uuid.New(), 1000, 300, "USD", at)
	actor := uuid.New()
	reason := "bonus"
	testdb.SeedEntry(t, conn, models.LedgerEntry{
		AffiliateID: account.ID,
		Type:        enums.LedgerEntryAdjustment,
		AmountCents: 100,
		ActorID:     &actor,
		Reason:      &reason,
		OccurredAt:  at,
	})

	page, err := svc.ListEarnings(ctx, account.ID, ledger.Window{}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, enums.LedgerEntryEarned, page.Entries[0].Type)

	payoutList, err := svc.ListPayouts(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, payoutList)
}
