package stripe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"

	"github.com/angelmondragon/partnerledger-backend/pkg/config"
)

type fakeTransfers struct {
	params *stripe.TransferParams
	err    error
}

func (f *fakeTransfers) New(params *stripe.TransferParams) (*stripe.Transfer, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.Transfer{ID: "tr_123"}, nil
}

func TestNewClientValidatesKeys(t *testing.T) {
	ctx := context.Background()
	cases := map[string]config.StripeConfig{
		"missing key":    {Secret: "whsec_x", Env: "test"},
		"missing secret": {APIKey: "sk_test_x", Env: "test"},
		"live key test":  {APIKey: "sk_live_x", Secret: "whsec_x", Env: "test"},
		"test key live":  {APIKey: "sk_test_x", Secret: "whsec_x", Env: "live"},
		"unknown env":    {APIKey: "sk_test_x", Secret: "whsec_x", Env: "staging"},
		"bare prefix":    {APIKey: "sk_testx", Secret: "whsec_x", Env: "test"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewClient(ctx, cfg, nil)
			assert.Error(t, err)
		})
	}

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "rk_test_x", Secret: " whsec_x ", Env: " TEST "}, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeTest, client.Mode())
	require.NotNil(t, client.Verifier())
	assert.Equal(t, "whsec_x", client.Verifier().secret)
	assert.False(t, client.Verifier().live)
	assert.Equal(t, defaultTolerance, client.Verifier().tolerance)
}

func TestCreateTransfer(t *testing.T) {
	fake := &fakeTransfers{}
	client := &Client{transfers: fake}

	id, err := client.CreateTransfer(context.Background(), TransferRequest{
		AmountCents:    6000,
		Currency:       "USD",
		Destination:    "acct_1",
		TransferGroup:  "payout_abc",
		IdempotencyKey: "payout-abc",
		Metadata:       map[string]string{"payout_id": "abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "tr_123", id)
	require.NotNil(t, fake.params)
	assert.EqualValues(t, 6000, *fake.params.Amount)
	assert.Equal(t, "usd", *fake.params.Currency)
	assert.Equal(t, "acct_1", *fake.params.Destination)
	assert.Equal(t, "payout-abc", *fake.params.IdempotencyKey)
	assert.Equal(t, "abc", fake.params.Metadata["payout_id"])
}

func TestCreateTransferRejectsBadRequests(t *testing.T) {
	fake := &fakeTransfers{}
	client := &Client{transfers: fake}
	ctx := context.Background()

	_, err := client.CreateTransfer(ctx, TransferRequest{Destination: "acct_1", IdempotencyKey: "k"})
	assert.Error(t, err)
	_, err = client.CreateTransfer(ctx, TransferRequest{AmountCents: 1, IdempotencyKey: "k"})
	assert.Error(t, err)
	_, err = client.CreateTransfer(ctx, TransferRequest{AmountCents: 1, Destination: "acct_1"})
	assert.Error(t, err)
	assert.Nil(t, fake.params)

	fake.err = errors.New("insufficient funds")
	_, err = client.CreateTransfer(ctx, TransferRequest{AmountCents: 1, Destination: "acct_1", IdempotencyKey: "k"})
	assert.EqualError(t, err, "insufficient funds")
}
