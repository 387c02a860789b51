package stripe

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v81"
)

// TransferRequest moves funds from the platform balance to a connected
// account.
type TransferRequest struct {
	AmountCents    int64
	Currency       string
	Destination    string
	TransferGroup  string
	IdempotencyKey string
	Metadata       map[string]string
}

// CreateTransfer issues a Connect transfer and returns its id. Stripe
// returns the original transfer when IdempotencyKey is replayed.
func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (string, error) {
	if c == nil || c.transfers == nil {
		return "", errors.New("stripe client not initialized")
	}
	if req.AmountCents <= 0 {
		return "", errors.New("transfer amount must be positive")
	}
	if strings.TrimSpace(req.Destination) == "" {
		return "", errors.New("transfer destination is required")
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return "", errors.New("idempotency key is required")
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Destination: stripe.String(req.Destination),
	}
	if req.TransferGroup != "" {
		params.TransferGroup = stripe.String(req.TransferGroup)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	transfer, err := c.transfers.New(params)
	if err != nil {
		return "", err
	}
	return transfer.ID, nil
}
