// Package stripe is the ledger's only Stripe surface: verifying invoice
// webhooks and sending Connect transfers for payouts.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/angelmondragon/partnerledger-backend/pkg/config"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

// Mode is the Stripe account mode a deployment talks to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errSecretRequired = errors.New("stripe webhook secret is required")
)

// keyPrefixes lists the secret and restricted key prefixes valid per mode.
var keyPrefixes = map[Mode][]string{
	ModeTest: {"sk_test_", "rk_test_"},
	ModeLive: {"sk_live_", "rk_live_"},
}

type transferAPI interface {
	New(params *stripe.TransferParams) (*stripe.Transfer, error)
}

type Client struct {
	transfers transferAPI
	verifier  *Verifier
	mode      Mode
}

// NewClient refuses a key from the other mode, so a staging deployment can
// never move live money.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode, err := parseMode(cfg.Env)
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if !hasAnyPrefix(apiKey, keyPrefixes[mode]) {
		return nil, fmt.Errorf("stripe %s mode requires one of %v keys", mode, keyPrefixes[mode])
	}
	verifier, err := NewVerifier(cfg.Secret, cfg.WebhookTolerance, mode == ModeLive)
	if err != nil {
		return nil, err
	}

	api := client.New(apiKey, nil)
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_mode", string(mode)), "stripe client initialized")
	}
	return &Client{transfers: api.Transfers, verifier: verifier, mode: mode}, nil
}

func (c *Client) Mode() Mode {
	if c == nil {
		return ""
	}
	return c.mode
}

// Verifier returns the webhook verifier bound to the client's mode.
func (c *Client) Verifier() *Verifier {
	if c == nil {
		return nil
	}
	return c.verifier
}

func parseMode(raw string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return ModeTest, nil
	case ModeTest, ModeLive:
		return mode, nil
	default:
		return "", fmt.Errorf("stripe environment must be %q or %q, got %q", ModeTest, ModeLive, raw)
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
