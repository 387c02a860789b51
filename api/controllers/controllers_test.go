package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/partnerledger-backend/api/middleware"
	"github.com/angelmondragon/partnerledger-backend/internal/affiliates"
	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	"github.com/angelmondragon/partnerledger-backend/internal/payouts"
	"github.com/angelmondragon/partnerledger-backend/pkg/config"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/pagination"
)

func newRequest(t *testing.T, method, target string, body any, actor uuid.UUID, params map[string]string) *http.Request {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := req.Context()
	if actor != uuid.Nil {
		ctx = middleware.WithActor(ctx, actor.String(), enums.ActorRoleAdmin)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

type fakeAffiliates struct {
	affiliates.Service
	owned      []models.Affiliate
	applied    *affiliates.ApplyInput
	rejectWith string
}

func (f *fakeAffiliates) Apply(_ context.Context, input affiliates.ApplyInput) (*affiliates.ApplyResult, error) {
	f.applied = &input
	return &affiliates.ApplyResult{
		Account: &models.Affiliate{ID: uuid.New(), Kind: input.Kind, OwnerID: input.OwnerID, Status: enums.AffiliateStatusPending},
		Created: true,
	}, nil
}

func (f *fakeAffiliates) ListByOwner(context.Context, uuid.UUID) ([]models.Affiliate, error) {
	return f.owned, nil
}

func (f *fakeAffiliates) GetByOwner(_ context.Context, kind enums.AffiliateKind, _ uuid.UUID) (*models.Affiliate, error) {
	for i := range f.owned {
		if f.owned[i].Kind == kind {
			return &f.owned[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "affiliate not found")
}

func (f *fakeAffiliates) Reject(_ context.Context, id, _ uuid.UUID, reason string) (*models.Affiliate, error) {
	f.rejectWith = reason
	return &models.Affiliate{ID: id, Status: enums.AffiliateStatusRejected, StatusReason: &reason}, nil
}

func (f *fakeAffiliates) UpdatePayoutPreferences(_ context.Context, id uuid.UUID, input affiliates.PayoutPreferencesInput) (*models.Affiliate, error) {
	return &models.Affiliate{ID: id, PayoutMethod: input.PayoutMethod}, nil
}

func TestApplyAffiliateCreatesAccount(t *testing.T) {
	svc := &fakeAffiliates{}
	owner := uuid.New()
	rec := httptest.NewRecorder()
	ApplyAffiliate(svc, nil).ServeHTTP(rec, newRequest(t, http.MethodPost, "/v1/affiliates/apply", map[string]any{
		"kind":           "reseller",
		"display_name":   "  Acme Resale ",
		"contact_email":  "ops@acme.test",
		"payout_method":  "bank",
		"payout_details": map[string]string{"iban": "DE00"},
		"currency":       "EUR",
	}, owner, nil))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, svc.applied)
	assert.Equal(t, owner, svc.applied.OwnerID)
	assert.Equal(t, enums.AffiliateKindReseller, svc.applied.Kind)
	assert.Equal(t, enums.PayoutMethodBankTransfer, svc.applied.PayoutMethod)
	assert.Equal(t, "Acme Resale", svc.applied.DisplayName)
}

func TestApplyAffiliateRequiresActorAndValidBody(t *testing.T) {
	svc := &fakeAffiliates{}

	rec := httptest.NewRecorder()
	ApplyAffiliate(svc, nil).ServeHTTP(rec, newRequest(t, http.MethodPost, "/", map[string]any{}, uuid.Nil, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	ApplyAffiliate(svc, nil).ServeHTTP(rec, newRequest(t, http.MethodPost, "/", map[string]any{
		"kind":          "distributor",
		"display_name":  "x",
		"contact_email": "not-an-email",
		"payout_method": "manual",
	}, uuid.New(), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeError(t, rec))
	assert.Nil(t, svc.applied)
}

func TestSelfAffiliateNeedsKindWhenOwningSeveralAccounts(t *testing.T) {
	partner := models.Affiliate{ID: uuid.New(), Kind: enums.AffiliateKindPartner}
	reseller := models.Affiliate{ID: uuid.New(), Kind: enums.AffiliateKindReseller}
	svc := &fakeAffiliates{owned: []models.Affiliate{partner, reseller}}
	scope := SelfAffiliate(svc)
	owner := uuid.New()

	_, err := scope(newRequest(t, http.MethodGet, "/v1/me/balance", nil, owner, nil))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	id, err := scope(newRequest(t, http.MethodGet, "/v1/me/balance?kind=reseller", nil, owner, nil))
	require.NoError(t, err)
	assert.Equal(t, reseller.ID, id)

	svc.owned = nil
	_, err = scope(newRequest(t, http.MethodGet, "/v1/me/balance", nil, owner, nil))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdatePayoutPreferencesUsesOwnAccount(t *testing.T) {
	account := models.Affiliate{ID: uuid.New(), Kind: enums.AffiliateKindPartner}
	svc := &fakeAffiliates{owned: []models.Affiliate{account}}

	rec := httptest.NewRecorder()
	UpdatePayoutPreferences(svc, nil).ServeHTTP(rec, newRequest(t, http.MethodPut, "/", map[string]any{
		"payout_method": "stripe_connect",
	}, uuid.New(), nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var payload struct {
		Data affiliateResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, account.ID, payload.Data.ID)
	assert.Equal(t, enums.PayoutMethodStripeConnect, payload.Data.PayoutMethod)
}

func TestAdminRejectAffiliateRequiresReason(t *testing.T) {
	svc := &fakeAffiliates{}
	id := uuid.New()
	params := map[string]string{"affiliateId": id.String()}

	rec := httptest.NewRecorder()
	AdminRejectAffiliate(svc, nil).ServeHTTP(rec, newRequest(t, http.MethodPost, "/", map[string]any{}, uuid.New(), params))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	AdminRejectAffiliate(svc, nil).ServeHTTP(rec, newRequest(t, http.MethodPost, "/", map[string]any{"reason": "incomplete KYC"}, uuid.New(), params))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "incomplete KYC", svc.rejectWith)
}

type fakePayouts struct {
	payouts.Service
	generated    *payouts.GenerateInput
	queueStatus  enums.PayoutStatus
	generateErr  error
	settledInput *payouts.SettleInput
}

func (f *fakePayouts) Generate(_ context.Context, affiliateID uuid.UUID, input payouts.GenerateInput) (*models.Payout, error) {
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	f.generated = &input
	return &models.Payout{ID: uuid.New(), AffiliateID: affiliateID, Status: enums.PayoutStatusOwed, Currency: "USD"}, nil
}

func (f *fakePayouts) ListByStatus(_ context.Context, status enums.PayoutStatus, _ pagination.Params) (*payouts.QueuePage, error) {
	f.queueStatus = status
	return &payouts.QueuePage{Payouts: []models.Payout{{ID: uuid.New(), Status: status}}, NextCursor: "abc"}, nil
}

func (f *fakePayouts) Settle(_ context.Context, id uuid.UUID, input payouts.SettleInput, _ uuid.UUID) (*models.Payout, error) {
	f.settledInput = &input
	return &models.Payout{ID: id, Status: enums.PayoutStatusPaid}, nil
}

func TestAdminGeneratePayoutAcceptsEmptyBody(t *testing.T) {
	svc := &fakePayouts{}
	actor := uuid.New()
	params := map[string]string{"affiliateId": uuid.NewString()}

	rec := httptest.NewRecorder()
	AdminGeneratePayout(svc, nil).ServeHTTP(rec, newRequest(t, http.MethodPost, "/", nil, actor, params))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, svc.generated)
	assert.Nil(t, svc.generated.Window.Start)
	assert.Equal(t, actor, *svc.generated.ActorID)
}

func TestAdminGeneratePayoutMapsNothingOwed(t *testing.T) {
	svc := &fakePayouts{generateErr: pkgerrors.New(pkgerrors.CodeNothingOwed, "no unsettled balance")}
	rec := httptest.NewRecorder()
	AdminGeneratePayout(svc, nil).ServeHTTP(rec, newRequest(t, http.MethodPost, "/", map[string]any{"currency": "USD"}, uuid.New(),
		map[string]string{"affiliateId": uuid.NewString()}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeNothingOwed), decodeError(t, rec))
}

func TestAdminPayoutQueueDefaultsToOwed(t *testing.T) {
	svc := &fakePayouts{}
	rec := httptest.NewRecorder()
	AdminPayoutQueue(svc, nil).ServeHTTP(rec, newRequest(t, http.MethodGet, "/v1/payouts", nil, uuid.New(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.PayoutStatusOwed, svc.queueStatus)

	var payload struct {
		Data       []payoutResponse `json:"data"`
		NextCursor string           `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Len(t, payload.Data, 1)
	assert.Equal(t, "abc", payload.NextCursor)

	rec = httptest.NewRecorder()
	AdminPayoutQueue(svc, nil).ServeHTTP(rec, newRequest(t, http.MethodGet, "/v1/payouts?status=lost", nil, uuid.New(), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminSettlePayoutValidatesMethod(t *testing.T) {
	svc := &fakePayouts{}
	params := map[string]string{"payoutId": uuid.NewString()}

	rec := httptest.NewRecorder()
	AdminSettlePayout(svc, nil).ServeHTTP(rec, newRequest(t, http.MethodPost, "/", map[string]any{"method": "cheque"}, uuid.New(), params))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.settledInput)

	rec = httptest.NewRecorder()
	AdminSettlePayout(svc, nil).ServeHTTP(rec, newRequest(t, http.MethodPost, "/", map[string]any{"method": "manual", "reference": " WIRE-1 "}, uuid.New(), params))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "WIRE-1", svc.settledInput.Reference)
}

type fakeLedger struct {
	ledger.Service
	filter ledger.EntryFilter
	input  *ledger.AdjustmentInput
}

func (f *fakeLedger) ListEntries(_ context.Context, _ uuid.UUID, filter ledger.EntryFilter) (*ledger.EntryPage, error) {
	f.filter = filter
	return &ledger.EntryPage{}, nil
}

func (f *fakeLedger) RecordAdjustment(_ context.Context, input ledger.AdjustmentInput) (*models.LedgerEntry, error) {
	f.input = &input
	return &models.LedgerEntry{ID: uuid.New(), Type: enums.LedgerEntryAdjustment, AmountCents: input.AmountCents}, nil
}

func TestListLedgerEntriesParsesTypesAndWindow(t *testing.T) {
	svc := &fakeLedger{}
	id := uuid.New()
	scope := func(*http.Request) (uuid.UUID, error) { return id, nil }

	rec := httptest.NewRecorder()
	ListLedgerEntries(svc, scope, nil).ServeHTTP(rec, newRequest(t, http.MethodGet,
		"/?type=earned&type=adjustment&from=2026-01-01&to=2026-02-01&limit=10", nil, uuid.New(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []enums.LedgerEntryType{enums.LedgerEntryEarned, enums.LedgerEntryAdjustment}, svc.filter.Types)
	assert.Equal(t, 10, svc.filter.Limit)
	require.NotNil(t, svc.filter.Window.Start)

	rec = httptest.NewRecorder()
	ListLedgerEntries(svc, scope, nil).ServeHTTP(rec, newRequest(t, http.MethodGet, "/?from=2026-02-01&to=2026-01-01", nil, uuid.New(), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRecordAdjustmentRejectsZero(t *testing.T) {
	svc := &fakeLedger{}
	params := map[string]string{"affiliateId": uuid.NewString()}

	rec := httptest.NewRecorder()
	AdminRecordAdjustment(svc, nil).ServeHTTP(rec, newRequest(t, http.MethodPost, "/", map[string]any{
		"amount_cents": 0, "currency": "USD", "reason": "typo",
	}, uuid.New(), params))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	AdminRecordAdjustment(svc, nil).ServeHTTP(rec, newRequest(t, http.MethodPost, "/", map[string]any{
		"amount_cents": -250, "currency": "USD", "reason": "refund clawback",
	}, uuid.New(), params))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, -250, svc.input.AmountCents)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	cfg := &config.Config{}
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"postgres": ok}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"postgres": ok, "redis": down}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
