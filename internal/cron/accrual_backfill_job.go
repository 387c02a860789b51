package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/partnerledger-backend/internal/accrual"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

const (
	defaultBackfillLookback = 72 * time.Hour
	defaultBackfillBatch    = 200
)

type accrualBackfiller interface {
	Backfill(ctx context.Context, paidSince time.Time, limit int) (accrual.BatchResult, error)
}

type AccrualBackfillJobParams struct {
	Logger    *logger.Logger
	Accrual   accrualBackfiller
	Lookback  time.Duration
	BatchSize int
}

func NewAccrualBackfillJob(params AccrualBackfillJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Accrual == nil {
		return nil, fmt.Errorf("accrual service required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultBackfillLookback
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBackfillBatch
	}
	return &accrualBackfillJob{
		logg:     params.Logger,
		accrual:  params.Accrual,
		lookback: lookback,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type accrualBackfillJob struct {
	logg     *logger.Logger
	accrual  accrualBackfiller
	lookback time.Duration
	batch    int
	now      func() time.Time
}

func (j *accrualBackfillJob) Name() string { return "accrual-backfill" }

// Run replays accrual for recently paid invoices that never received a
// split, covering webhooks that were dropped or failed.
func (j *accrualBackfillJob) Run(ctx context.Context) error {
	since := j.now().UTC().Add(-j.lookback)
	tally, err := j.accrual.Backfill(ctx, since, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"paid_since":      since,
		"accrued":         tally.Accrued,
		"already_accrued": tally.AlreadyAccrued,
		"skipped":         tally.Skipped,
		"failed":          tally.Failed,
	})
	if err != nil {
		return fmt.Errorf("accrual backfill: %w", err)
	}
	j.logg.Info(logCtx, "accrual backfill complete")
	return nil
}
