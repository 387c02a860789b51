package payouts

import (
	"context"
	"fmt"

	"github.com/angelmondragon/partnerledger-backend/pkg/stripe"
)

type transferCreator interface {
	CreateTransfer(ctx context.Context, req stripe.TransferRequest) (string, error)
}

// StripeDisburser settles stripe_connect payouts with a Connect transfer.
type StripeDisburser struct {
	client transferCreator
}

// NewStripeDisburser adapts a Stripe client to Disburser.
func NewStripeDisburser(client transferCreator) (*StripeDisburser, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &StripeDisburser{client: client}, nil
}

func (d *StripeDisburser) Disburse(ctx context.Context, req DisbursementRequest) (string, error) {
	return d.client.CreateTransfer(ctx, stripe.TransferRequest{
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		Destination:    req.Destination,
		TransferGroup:  "payout_" + req.PayoutID.String(),
		IdempotencyKey: req.IdempotencyKey,
		Metadata: map[string]string{
			"payout_id":    req.PayoutID.String(),
			"affiliate_id": req.AffiliateID.String(),
		},
	})
}
