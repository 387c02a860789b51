package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	"github.com/angelmondragon/partnerledger-backend/internal/payouts"
	"github.com/angelmondragon/partnerledger-backend/pkg/db"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

const defaultMinimumPayableCents = 1000

type unsettledLedger interface {
	AffiliatesWithUnsettled(ctx context.Context, minimumCents int64) ([]uuid.UUID, error)
	Balances(ctx context.Context, affiliateID uuid.UUID) ([]ledger.CurrencyBalance, error)
}

type affiliateLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
}

type payoutGenerator interface {
	Generate(ctx context.Context, affiliateID uuid.UUID, input payouts.GenerateInput) (*models.Payout, error)
}

type PayoutGenerationJobParams struct {
	Logger              *logger.Logger
	Ledger              unsettledLedger
	Affiliates          affiliateLoader
	Payouts             payoutGenerator
	MinimumPayableCents int64
}

// PayoutGenerationResult tallies one run.
type PayoutGenerationResult struct {
	Generated   int
	Outstanding int
	NothingOwed int
	Ineligible  int
	Failed      int
}

func NewPayoutGenerationJob(params PayoutGenerationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Affiliates == nil {
		return nil, fmt.Errorf("affiliate repository required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	minimum := params.MinimumPayableCents
	if minimum <= 0 {
		minimum = defaultMinimumPayableCents
	}
	return &payoutGenerationJob{
		logg:       params.Logger,
		ledger:     params.Ledger,
		affiliates: params.Affiliates,
		payouts:    params.Payouts,
		minimum:    minimum,
		now:        time.Now,
	}, nil
}

type payoutGenerationJob struct {
	logg       *logger.Logger
	ledger     unsettledLedger
	affiliates affiliateLoader
	payouts    payoutGenerator
	minimum    int64
	now        func() time.Time
}

func (j *payoutGenerationJob) Name() string { return "payout-generation" }

// Run generates payouts for earning affiliates whose unsettled balance in
// some currency reaches the minimum. Entries dated today wait for the next
// run.
func (j *payoutGenerationJob) Run(ctx context.Context) error {
	result, err := j.run(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"generated":     result.Generated,
		"outstanding":   result.Outstanding,
		"nothing_owed":  result.NothingOwed,
		"ineligible":    result.Ineligible,
		"failed":        result.Failed,
		"minimum_cents": j.minimum,
	})
	j.logg.Info(logCtx, "payout generation complete")
	return err
}

func (j *payoutGenerationJob) run(ctx context.Context) (PayoutGenerationResult, error) {
	var result PayoutGenerationResult
	ids, err := j.ledger.AffiliatesWithUnsettled(ctx, j.minimum)
	if err != nil {
		return result, fmt.Errorf("list affiliates with unsettled balance: %w", err)
	}

	now := j.now().UTC()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var errs error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, multierr.Append(errs, err)
		}
		account, err := j.affiliates.FindByID(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				result.Ineligible++
				continue
			}
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("affiliate %s: %w", id, err))
			continue
		}
		if !account.Status.CanEarn() {
			result.Ineligible++
			continue
		}
		if err := j.generate(ctx, id, cutoff, &result); err != nil {
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("affiliate %s: %w", id, err))
		}
	}
	return result, errs
}

// generate tries each currency that clears the minimum until one payout is
// created; an affiliate holds one outstanding payout at a time.
func (j *payoutGenerationJob) generate(ctx context.Context, affiliateID uuid.UUID, cutoff time.Time, result *PayoutGenerationResult) error {
	balances, err := j.ledger.Balances(ctx, affiliateID)
	if err != nil {
		return fmt.Errorf("load balances: %w", err)
	}
	for _, balance := range balances {
		if balance.UnsettledCents < j.minimum {
			continue
		}
		end := cutoff
		payout, err := j.payouts.Generate(ctx, affiliateID, payouts.GenerateInput{
			Window:   ledger.Window{End: &end},
			Currency: balance.Currency,
		})
		switch {
		case err == nil:
			result.Generated++
			logCtx := j.logg.WithFields(j.logg.WithAffiliateID(ctx, affiliateID.String()), map[string]any{
				"payout_id":         payout.ID.String(),
				"net_payable_cents": payout.NetPayableCents,
				"currency":          payout.Currency,
			})
			j.logg.Info(logCtx, "scheduled payout generated")
			return nil
		case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
			result.Outstanding++
			return nil
		case pkgerrors.IsCode(err, pkgerrors.CodeNothingOwed):
			result.NothingOwed++
		default:
			return err
		}
	}
	return nil
}
