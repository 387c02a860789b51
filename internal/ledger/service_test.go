package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/partnerledger-backend/internal/affiliates"
	"github.com/angelmondragon/partnerledger-backend/internal/audit"
	"github.com/angelmondragon/partnerledger-backend/internal/testdb"
	"github.com/angelmondragon/partnerledger-backend/pkg/db"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
	"github.com/angelmondragon/partnerledger-backend/pkg/pagination"
)

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	client := testdb.New(t)
	svc, err := NewService(
		client,
		NewRepository(client.DB()),
		affiliates.NewRepository(client.DB()),
		audit.NewRepository(client.DB()),
		outbox.NewService(outbox.NewRepository(client.DB()), nil),
		nil,
	)
	require.NoError(t, err)
	return svc, client
}

func earned(affiliateID uuid.UUID, commissionCents int64, at time.Time) models.LedgerEntry {
	invoiceID := uuid.New()
	return models.LedgerEntry{
		AffiliateID:     affiliateID,
		InvoiceID:       &invoiceID,
		Type:            enums.LedgerEntryEarned,
		AmountCents:     commissionCents,
		GrossCents:      commissionCents * 5,
		CommissionCents: commissionCents,
		NetCents:        commissionCents * 4,
		OccurredAt:      at,
	}
}

func TestBalanceExcludesConsumedEntries(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	conn := client.DB()

	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	now := time.Now().UTC()
	first := testdb.SeedEntry(t, conn, earned(account.ID, 1000, now.Add(-2*time.Hour)))
	testdb.SeedEntry(t, conn, earned(account.ID, 2000, now.Add(-time.Hour)))

	balance, err := svc.Balance(ctx, account.ID)
	require.NoError(t, err)
	usd := balance.For("usd")
	assert.EqualValues(t, 3000, usd.TotalCents)
	assert.EqualValues(t, 3000, usd.UnsettledCents)

	payoutID := uuid.New()
	require.NoError(t, conn.Create(&models.PayoutEntry{PayoutID: payoutID, LedgerEntryID: first.ID}).Error)

	balance, err = svc.Balance(ctx, account.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3000, balance.For("USD").TotalCents)
	assert.EqualValues(t, 2000, balance.For("USD").UnsettledCents)

	unsettled, err := svc.UnsettledEntries(ctx, account.ID, Window{})
	require.NoError(t, err)
	require.Len(t, unsettled, 1)

	released := now
	require.NoError(t, conn.Model(&models.PayoutEntry{}).
		Where("payout_id = ?", payoutID).
		Update("released_at", released).Error)
	balance, err = svc.Balance(ctx, account.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3000, balance.For("USD").UnsettledCents)
}

func TestBalanceForUnknownAffiliateIsZero(t *testing.T) {
	svc, _ := newTestService(t)
	balance, err := svc.Balance(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, balance.Currencies)
	assert.EqualValues(t, 0, balance.For("USD").TotalCents)
}

func TestUnsettledEntriesRespectsWindow(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	conn := client.DB()

	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindReseller, enums.AffiliateStatusActive)
	jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	testdb.SeedEntry(t, conn, earned(account.ID, 100, jan))
	testdb.SeedEntry(t, conn, earned(account.ID, 200, feb))

	entries, err := svc.UnsettledEntries(ctx, account.ID, Window{End: &feb})
	require.NoError(t, err)
	require.Len(t, entries, 1, "window end is exclusive")
	assert.EqualValues(t, 100, entries[0].AmountCents)

	entries, err = svc.UnsettledEntries(ctx, account.ID, Window{Start: &feb})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 200, entries[0].AmountCents)

	_, err = svc.UnsettledEntries(ctx, account.ID, Window{Start: &feb, End: &jan})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRecordAdjustment(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	conn := client.DB()
	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusSuspended)
	admin := uuid.New()

	entry, err := svc.RecordAdjustment(ctx, AdjustmentInput{
		AffiliateID: account.ID,
		AmountCents: -500,
		ActorID:     admin,
		Reason:      "chargeback on in_123",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.LedgerEntryAdjustment, entry.Type)
	assert.Equal(t, "USD", entry.Currency)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, admin, *entry.ActorID)

	balance, err := svc.Balance(ctx, account.ID)
	require.NoError(t, err)
	assert.EqualValues(t, -500, balance.For("USD").TotalCents)
	assert.EqualValues(t, -500, balance.For("USD").UnsettledCents)

	assert.EqualValues(t, 1, testdb.CountRows(t, conn, "affiliate_audit_logs"))
	assert.EqualValues(t, 1, testdb.CountRows(t, conn, "outbox_events"))
}

func TestRecordAdjustmentValidation(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	account := testdb.SeedAffiliate(t, client.DB(), enums.AffiliateKindPartner, enums.AffiliateStatusApproved)

	cases := map[string]AdjustmentInput{
		"zero amount": {AffiliateID: account.ID, ActorID: uuid.New(), Reason: "x"},
		"no actor":    {AffiliateID: account.ID, AmountCents: 10, Reason: "x"},
		"no reason":   {AffiliateID: account.ID, AmountCents: 10, ActorID: uuid.New(), Reason: "  "},
		"currency":    {AffiliateID: account.ID, AmountCents: 10, ActorID: uuid.New(), Reason: "x", Currency: "US"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.RecordAdjustment(ctx, input)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	_, err := svc.RecordAdjustment(ctx, AdjustmentInput{AffiliateID: uuid.New(), AmountCents: 10, ActorID: uuid.New(), Reason: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestLedgerEntriesAreAppendOnly(t *testing.T) {
	_, client := newTestService(t)
	conn := client.DB()
	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	entry := testdb.SeedEntry(t, conn, earned(account.ID, 100, time.Now().UTC()))

	err := conn.Model(&models.LedgerEntry{}).Where("id = ?", entry.ID).Update("amount_cents", 1).Error
	assert.Error(t, err)
	err = conn.Where("id = ?", entry.ID).Delete(&models.LedgerEntry{}).Error
	assert.Error(t, err)
}

func TestEarnedEntryIsUniquePerInvoice(t *testing.T) {
	_, client := newTestService(t)
	conn := client.DB()
	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	entry := testdb.SeedEntry(t, conn, earned(account.ID, 100, time.Now().UTC()))

	dup := earned(account.ID, 100, time.Now().UTC())
	dup.InvoiceID = entry.InvoiceID
	err := NewRepository(conn).Append(context.Background(), &dup)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, "ux_ledger_entries_earned_invoice"))

	found, err := NewRepository(conn).FindEarned(context.Background(), account.ID, *entry.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, found.ID)
}

func TestListEntriesPagesAndFilters(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	conn := client.DB()
	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		testdb.SeedEntry(t, conn, earned(account.ID, int64(100*(i+1)), base.Add(time.Duration(i)*time.Hour)))
	}
	actor := uuid.New()
	reason := "goodwill"
	testdb.SeedEntry(t, conn, models.LedgerEntry{
		AffiliateID: account.ID,
		Type:        enums.LedgerEntryAdjustment,
		AmountCents: 50,
		ActorID:     &actor,
		Reason:      &reason,
		OccurredAt:  base.Add(5 * time.Hour),
	})

	page, err := svc.ListEntries(ctx, account.ID, EntryFilter{
		Types:  []enums.LedgerEntryType{enums.LedgerEntryEarned},
		Params: pagination.Params{Limit: 2},
	})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.EqualValues(t, 300, page.Entries[0].AmountCents, "newest first")
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.ListEntries(ctx, account.ID, EntryFilter{
		Types:  []enums.LedgerEntryType{enums.LedgerEntryEarned},
		Params: pagination.Params{Limit: 2, Cursor: page.NextCursor},
	})
	require.NoError(t, err)
	require.Len(t, next.Entries, 1)
	assert.EqualValues(t, 100, next.Entries[0].AmountCents)
	assert.Empty(t, next.NextCursor)

	all, err := svc.ListEntries(ctx, account.ID, EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, all.Entries, 4)

	_, err = svc.ListEntries(ctx, account.ID, EntryFilter{Types: []enums.LedgerEntryType{"bonus"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAffiliatesWithUnsettledHonorsMinimum(t *testing.T) {
	_, client := newTestService(t)
	conn := client.DB()
	repo := NewRepository(conn)

	big := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	small := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	testdb.SeedEntry(t, conn, earned(big.ID, 1500, time.Now().UTC()))
	testdb.SeedEntry(t, conn, earned(small.ID, 500, time.Now().UTC()))

	ids, err := repo.AffiliatesWithUnsettled(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{big.ID}, ids)
}
