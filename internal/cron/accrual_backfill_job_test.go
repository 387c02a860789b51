package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/partnerledger-backend/internal/accrual"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

type fakeBackfiller struct {
	since  time.Time
	limit  int
	result accrual.BatchResult
	err    error
}

func (f *fakeBackfiller) Backfill(_ context.Context, paidSince time.Time, limit int) (accrual.BatchResult, error) {
	f.since = paidSince
	f.limit = limit
	return f.result, f.err
}

func TestAccrualBackfillJobUsesLookbackWindow(t *testing.T) {
	backfiller := &fakeBackfiller{result: accrual.BatchResult{Accrued: 3, AlreadyAccrued: 1}}
	jobIface, err := NewAccrualBackfillJob(AccrualBackfillJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Accrual: backfiller,
	})
	if err != nil {
		t.Fatalf("NewAccrualBackfillJob: %v", err)
	}
	job := jobIface.(*accrualBackfillJob)
	now := time.Date(2026, 5, 14, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !backfiller.since.Equal(now.Add(-defaultBackfillLookback)) {
		t.Fatalf("since = %v", backfiller.since)
	}
	if backfiller.limit != defaultBackfillBatch {
		t.Fatalf("limit = %d", backfiller.limit)
	}
}

func TestAccrualBackfillJobWrapsError(t *testing.T) {
	boom := errors.New("boom")
	jobIface, _ := NewAccrualBackfillJob(AccrualBackfillJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Accrual:   &fakeBackfiller{err: boom},
		Lookback:  time.Hour,
		BatchSize: 5,
	})
	if err := jobIface.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}
