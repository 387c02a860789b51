package payouts

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/internal/affiliates"
	"github.com/angelmondragon/partnerledger-backend/internal/audit"
	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	"github.com/angelmondragon/partnerledger-backend/internal/testdb"
	"github.com/angelmondragon/partnerledger-backend/pkg/db"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
	"github.com/angelmondragon/partnerledger-backend/pkg/pagination"
)

type fakeDisburser struct {
	mu       sync.Mutex
	requests []DisbursementRequest
	err      error
	// during runs while the transfer is in flight.
	during func()
}

func (f *fakeDisburser) Disburse(_ context.Context, req DisbursementRequest) (string, error) {
	if f.during != nil {
		f.during()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return "tr_" + req.PayoutID.String()[:8], nil
}

func newTestService(t *testing.T, disburser Disburser) (Service, *db.Client) {
	t.Helper()
	client := testdb.New(t)
	return newServiceOn(t, client, disburser), client
}

func newServiceOn(t *testing.T, client *db.Client, disburser Disburser) Service {
	t.Helper()
	conn := client.DB()
	svc, err := NewService(Params{
		DB:         client,
		Payouts:    NewRepository(conn),
		Ledger:     ledger.NewRepository(conn),
		Affiliates: affiliates.NewRepository(conn),
		Audit:      audit.NewRepository(conn),
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
		Disburser:  disburser,
	})
	require.NoError(t, err)
	return svc
}

func seedEarned(t *testing.T, conn *gorm.DB, affiliateID uuid.UUID, commissionCents int64, currency string, at time.Time) models.LedgerEntry {
	t.Helper()
	invoiceID := uuid.New()
	return testdb.SeedEntry(t, conn, models.LedgerEntry{
		AffiliateID:     affiliateID,
		InvoiceID:       &invoiceID,
		Type:            enums.LedgerEntryEarned,
		AmountCents:     commissionCents,
		GrossCents:      commissionCents * 4,
		CommissionCents: commissionCents,
		NetCents:        commissionCents * 3,
		Currency:        currency,
		OccurredAt:      at.UTC(),
	})
}

func seedAdjustment(t *testing.T, conn *gorm.DB, affiliateID uuid.UUID, amountCents int64, at time.Time) models.LedgerEntry {
	t.Helper()
	actor := uuid.New()
	reason := "manual correction"
	return testdb.SeedEntry(t, conn, models.LedgerEntry{
		AffiliateID: affiliateID,
		Type:        enums.LedgerEntryAdjustment,
		AmountCents: amountCents,
		Currency:    "USD",
		ActorID:     &actor,
		Reason:      &reason,
		OccurredAt:  at.UTC(),
	})
}

func errCode(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	return typed.Code()
}

func TestPayoutLifecycle(t *testing.T) {
	svc, client := newTestService(t, nil)
	ctx := context.Background()
	conn := client.DB()

	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	now := time.Now().UTC()
	seedEarned(t, conn, account.ID, 1000, "USD", now.Add(-3*time.Hour))
	seedEarned(t, conn, account.ID, 2000, "USD", now.Add(-2*time.Hour))
	seedEarned(t, conn, account.ID, 3000, "USD", now.Add(-time.Hour))

	payout, err := svc.Generate(ctx, account.ID, GenerateInput{})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusOwed, payout.Status)
	assert.EqualValues(t, 6000, payout.NetPayableCents)
	assert.EqualValues(t, 6000, payout.CommissionEarnedCents)
	assert.EqualValues(t, 24000, payout.GrossRevenueCents)
	assert.Equal(t, 3, payout.EntryCount)
	assert.Equal(t, "USD", payout.Currency)

	_, err = svc.Generate(ctx, account.ID, GenerateInput{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, errCode(t, err))
	assert.Equal(t, payout.ID.String(), pkgerrors.As(err).Details().(map[string]any)["payout_id"])

	reviewer := uuid.New()
	approved, err := svc.Approve(ctx, payout.ID, reviewer)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, reviewer, *approved.ApprovedBy)

	_, err = svc.Generate(ctx, account.ID, GenerateInput{})
	assert.Equal(t, pkgerrors.CodeConflict, errCode(t, err), "approved payout is still outstanding")

	paid, err := svc.Settle(ctx, payout.ID, SettleInput{Method: enums.PayoutMethodBankTransfer, Reference: "wire-0042"}, reviewer)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	require.NotNil(t, paid.PayoutReference)
	assert.Equal(t, "wire-0042", *paid.PayoutReference)

	_, err = svc.Generate(ctx, account.ID, GenerateInput{})
	assert.Equal(t, pkgerrors.CodeNothingOwed, errCode(t, err))

	var debit models.LedgerEntry
	require.NoError(t, conn.Where("payout_id = ? AND type = ?", payout.ID, enums.LedgerEntryPayout).First(&debit).Error)
	assert.EqualValues(t, -6000, debit.AmountCents)

	balances, err := ledger.NewRepository(conn).Balances(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.EqualValues(t, 0, balances[0].TotalCents)
	assert.EqualValues(t, 0, balances[0].UnsettledCents)

	assert.EqualValues(t, 3, testdb.CountRows(t, conn, "affiliate_audit_logs"))
	assert.EqualValues(t, 3, testdb.CountRows(t, conn, "outbox_events"))
}

func TestGenerateConcurrentCallsProduceOnePayout(t *testing.T) {
	svc, client := newTestService(t, nil)
	ctx := context.Background()
	conn := client.DB()

	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindReseller, enums.AffiliateStatusActive)
	seedEarned(t, conn, account.ID, 1500, "USD", time.Now().UTC().Add(-time.Hour))

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Generate(ctx, account.ID, GenerateInput{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
	assert.EqualValues(t, 1, testdb.CountRows(t, conn, "payouts"))
	assert.EqualValues(t, 1, testdb.CountRows(t, conn, "payout_entries"))
}

func TestVoidReleasesEntries(t *testing.T) {
	svc, client := newTestService(t, nil)
	ctx := context.Background()
	conn := client.DB()
	ledgerRepo := ledger.NewRepository(conn)

	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	seedEarned(t, conn, account.ID, 2500, "USD", time.Now().UTC().Add(-time.Hour))

	payout, err := svc.Generate(ctx, account.ID, GenerateInput{})
	require.NoError(t, err)

	balances, err := ledgerRepo.Balances(ctx, account.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, balances[0].UnsettledCents, "owed payout holds the entries")

	_, err = svc.Void(ctx, payout.ID, "  ", uuid.New())
	assert.Equal(t, pkgerrors.CodeValidation, errCode(t, err))

	voided, err := svc.Void(ctx, payout.ID, "bank details wrong", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusVoid, voided.Status)
	require.NotNil(t, voided.VoidReason)

	balances, err = ledgerRepo.Balances(ctx, account.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2500, balances[0].UnsettledCents)
	assert.EqualValues(t, 2500, balances[0].TotalCents)

	_, err = svc.Void(ctx, payout.ID, "again", uuid.New())
	assert.Equal(t, pkgerrors.CodeInvalidState, errCode(t, err))

	regenerated, err := svc.Generate(ctx, account.ID, GenerateInput{})
	require.NoError(t, err)
	assert.NotEqual(t, payout.ID, regenerated.ID)
	assert.EqualValues(t, 2500, regenerated.NetPayableCents)
}

func TestGenerateNetsAdjustments(t *testing.T) {
	svc, client := newTestService(t, nil)
	ctx := context.Background()
	conn := client.DB()

	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	at := time.Now().UTC().Add(-time.Hour)
	seedEarned(t, conn, account.ID, 500, "USD", at)
	seedAdjustment(t, conn, account.ID, -800, at)

	_, err := svc.Generate(ctx, account.ID, GenerateInput{})
	assert.Equal(t, pkgerrors.CodeNothingOwed, errCode(t, err))
	assert.EqualValues(t, 0, testdb.CountRows(t, conn, "payouts"))

	seedEarned(t, conn, account.ID, 1000, "USD", at)
	payout, err := svc.Generate(ctx, account.ID, GenerateInput{})
	require.NoError(t, err)
	assert.EqualValues(t, 1500, payout.CommissionEarnedCents)
	assert.EqualValues(t, -800, payout.AdjustmentsCents)
	assert.EqualValues(t, 700, payout.NetPayableCents)
	assert.Equal(t, 3, payout.EntryCount)
}

func TestGenerateRequiresSingleCurrency(t *testing.T) {
	svc, client := newTestService(t, nil)
	ctx := context.Background()
	conn := client.DB()

	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	at := time.Now().UTC().Add(-time.Hour)
	seedEarned(t, conn, account.ID, 1000, "USD", at)
	seedEarned(t, conn, account.ID, 700, "EUR", at)

	_, err := svc.Generate(ctx, account.ID, GenerateInput{})
	assert.Equal(t, pkgerrors.CodeCurrency, errCode(t, err))

	payout, err := svc.Generate(ctx, account.ID, GenerateInput{Currency: "eur"})
	require.NoError(t, err)
	assert.Equal(t, "EUR", payout.Currency)
	assert.EqualValues(t, 700, payout.NetPayableCents)
	assert.Equal(t, 1, payout.EntryCount)
}

func TestGenerateHonorsWindow(t *testing.T) {
	svc, client := newTestService(t, nil)
	ctx := context.Background()
	conn := client.DB()

	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	jan := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	seedEarned(t, conn, account.ID, 100, "USD", jan)
	seedEarned(t, conn, account.ID, 200, "USD", feb)

	first, err := svc.Generate(ctx, account.ID, GenerateInput{Window: ledger.Window{End: &feb}})
	require.NoError(t, err)
	assert.EqualValues(t, 100, first.NetPayableCents)
	require.NotNil(t, first.PeriodEnd)
	assert.True(t, first.PeriodEnd.Equal(feb))

	reviewer := uuid.New()
	_, err = svc.Approve(ctx, first.ID, reviewer)
	require.NoError(t, err)
	_, err = svc.Settle(ctx, first.ID, SettleInput{Method: enums.PayoutMethodManual}, reviewer)
	require.NoError(t, err)

	second, err := svc.Generate(ctx, account.ID, GenerateInput{})
	require.NoError(t, err)
	assert.EqualValues(t, 200, second.NetPayableCents, "consumed entries never return through a wider window")
}

func TestSuspensionLeavesOwedPayoutIntact(t *testing.T) {
	svc, client := newTestService(t, nil)
	ctx := context.Background()
	conn := client.DB()

	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	seedEarned(t, conn, account.ID, 900, "USD", time.Now().UTC().Add(-time.Hour))
	payout, err := svc.Generate(ctx, account.ID, GenerateInput{})
	require.NoError(t, err)

	require.NoError(t, conn.Model(&models.Affiliate{}).
		Where("id = ?", account.ID).
		Update("status", enums.AffiliateStatusSuspended).Error)

	reloaded, err := svc.Get(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusOwed, reloaded.Status)
	assert.EqualValues(t, 900, reloaded.NetPayableCents)

	_, err = svc.Approve(ctx, payout.ID, uuid.New())
	require.NoError(t, err)
}

func TestTransitionsRejectWrongState(t *testing.T) {
	svc, client := newTestService(t, nil)
	ctx := context.Background()
	conn := client.DB()

	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	seedEarned(t, conn, account.ID, 900, "USD", time.Now().UTC().Add(-time.Hour))
	payout, err := svc.Generate(ctx, account.ID, GenerateInput{})
	require.NoError(t, err)

	_, err = svc.Settle(ctx, payout.ID, SettleInput{Method: enums.PayoutMethodManual}, uuid.New())
	assert.Equal(t, pkgerrors.CodeInvalidState, errCode(t, err), "owed payouts cannot be settled")

	_, err = svc.Approve(ctx, payout.ID, uuid.New())
	require.NoError(t, err)
	_, err = svc.Approve(ctx, payout.ID, uuid.New())
	assert.Equal(t, pkgerrors.CodeInvalidState, errCode(t, err))

	_, err = svc.Settle(ctx, payout.ID, SettleInput{Method: "cheque"}, uuid.New())
	assert.Equal(t, pkgerrors.CodeValidation, errCode(t, err))

	_, err = svc.Approve(ctx, uuid.New(), uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, errCode(t, err))
}

func TestSettleStripeConnectDisburses(t *testing.T) {
	disburser := &fakeDisburser{}
	svc, client := newTestService(t, disburser)
	ctx := context.Background()
	conn := client.DB()

	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	require.NoError(t, conn.Model(&models.Affiliate{}).
		Where("id = ?", account.ID).
		Update("payout_details", json.RawMessage(`{"stripe_account_id":"acct_1PartnerX"}`)).Error)
	seedEarned(t, conn, account.ID, 4200, "USD", time.Now().UTC().Add(-time.Hour))

	payout, err := svc.Generate(ctx, account.ID, GenerateInput{})
	require.NoError(t, err)
	reviewer := uuid.New()
	_, err = svc.Approve(ctx, payout.ID, reviewer)
	require.NoError(t, err)

	paid, err := svc.Settle(ctx, payout.ID, SettleInput{Method: enums.PayoutMethodStripeConnect}, reviewer)
	require.NoError(t, err)
	require.Len(t, disburser.requests, 1)
	req := disburser.requests[0]
	assert.Equal(t, "acct_1PartnerX", req.Destination)
	assert.EqualValues(t, 4200, req.AmountCents)
	assert.Equal(t, "payout-"+payout.ID.String(), req.IdempotencyKey)
	require.NotNil(t, paid.PayoutReference)
	assert.Equal(t, "tr_"+payout.ID.String()[:8], *paid.PayoutReference)
}

func approvedStripePayout(t *testing.T, svc Service, conn *gorm.DB) *models.Payout {
	t.Helper()
	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	require.NoError(t, conn.Model(&models.Affiliate{}).
		Where("id = ?", account.ID).
		Update("payout_details", json.RawMessage(`{"stripe_account_id":"acct_1PartnerX"}`)).Error)
	seedEarned(t, conn, account.ID, 4200, "USD", time.Now().UTC().Add(-time.Hour))

	payout, err := svc.Generate(context.Background(), account.ID, GenerateInput{})
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), payout.ID, uuid.New())
	require.NoError(t, err)
	return payout
}

func TestVoidRefusedWhileTransferInFlight(t *testing.T) {
	disburser := &fakeDisburser{}
	svc, client := newTestService(t, disburser)
	ctx := context.Background()
	conn := client.DB()
	payout := approvedStripePayout(t, svc, conn)

	var voidErr, manualErr error
	disburser.during = func() {
		_, voidErr = svc.Void(ctx, payout.ID, "changed my mind", uuid.New())
		_, manualErr = svc.Settle(ctx, payout.ID, SettleInput{Method: enums.PayoutMethodManual, Reference: "wire-1"}, uuid.New())
	}

	paid, err := svc.Settle(ctx, payout.ID, SettleInput{Method: enums.PayoutMethodStripeConnect}, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, pkgerrors.CodeInvalidState, errCode(t, voidErr), "void must wait for the transfer")
	assert.Equal(t, pkgerrors.CodeInvalidState, errCode(t, manualErr), "manual settle must wait for the transfer")
	assert.Equal(t, enums.PayoutStatusPaid, paid.Status)
	assert.Nil(t, paid.DisbursingAt)
	assert.Len(t, disburser.requests, 1)

	var released int64
	require.NoError(t, conn.Model(&models.PayoutEntry{}).
		Where("payout_id = ? AND released_at IS NOT NULL", payout.ID).
		Count(&released).Error)
	assert.Zero(t, released, "paid payout keeps its entries")

	var settlements int64
	require.NoError(t, conn.Model(&models.LedgerEntry{}).
		Where("payout_id = ? AND type = ?", payout.ID, enums.LedgerEntryPayout).
		Count(&settlements).Error)
	assert.EqualValues(t, 1, settlements)
}

func TestFailedTransferReleasesClaim(t *testing.T) {
	disburser := &fakeDisburser{err: errors.New("stripe unavailable")}
	svc, client := newTestService(t, disburser)
	ctx := context.Background()
	payout := approvedStripePayout(t, svc, client.DB())

	_, err := svc.Settle(ctx, payout.ID, SettleInput{Method: enums.PayoutMethodStripeConnect}, uuid.New())
	assert.Equal(t, pkgerrors.CodeDependency, errCode(t, err))

	reloaded, err := svc.Get(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusApproved, reloaded.Status)
	assert.Nil(t, reloaded.DisbursingAt)

	voided, err := svc.Void(ctx, payout.ID, "destination closed", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusVoid, voided.Status)
}

func TestSettleStripeConnectWithoutDisburser(t *testing.T) {
	svc, client := newTestService(t, nil)
	ctx := context.Background()
	conn := client.DB()

	account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
	seedEarned(t, conn, account.ID, 4200, "USD", time.Now().UTC().Add(-time.Hour))
	payout, err := svc.Generate(ctx, account.ID, GenerateInput{})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, payout.ID, uuid.New())
	require.NoError(t, err)

	_, err = svc.Settle(ctx, payout.ID, SettleInput{Method: enums.PayoutMethodStripeConnect}, uuid.New())
	assert.Equal(t, pkgerrors.CodeValidation, errCode(t, err))

	reloaded, err := svc.Get(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusApproved, reloaded.Status)
}

func TestListByStatusPagesQueue(t *testing.T) {
	svc, client := newTestService(t, nil)
	ctx := context.Background()
	conn := client.DB()

	for i := 0; i < 3; i++ {
		account := testdb.SeedAffiliate(t, conn, enums.AffiliateKindPartner, enums.AffiliateStatusApproved)
		seedEarned(t, conn, account.ID, int64(100*(i+1)), "USD", time.Now().UTC().Add(-time.Hour))
		_, err := svc.Generate(ctx, account.ID, GenerateInput{})
		require.NoError(t, err)
	}

	page, err := svc.ListByStatus(ctx, enums.PayoutStatusOwed, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Payouts, 2)
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.ListByStatus(ctx, enums.PayoutStatusOwed, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Payouts, 1)
	assert.Empty(t, next.NextCursor)

	empty, err := svc.ListByStatus(ctx, enums.PayoutStatusPaid, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, empty.Payouts)

	_, err = svc.ListByStatus(ctx, "pending", pagination.Params{})
	assert.Equal(t, pkgerrors.CodeValidation, errCode(t, err))
}
