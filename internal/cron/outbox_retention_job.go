package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
)

const (
	defaultPublishedRetention = 30 * 24 * time.Hour
	defaultParkedRetention    = 90 * 24 * time.Hour
	defaultParkedAfter        = 10
	defaultPruneChunk         = 1000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	Prune(ctx context.Context, tx *gorm.DB, scope outbox.PruneScope, cutoff time.Time, maxAttempts, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Outbox outboxPruner
	// Retention applies to published rows; ParkedRetention to rows the
	// publisher gave up on, which are kept longer for inspection.
	Retention       time.Duration
	ParkedRetention time.Duration
	// ParkedAfter must match the publisher's max attempts.
	ParkedAfter int
	ChunkSize   int
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	outbox      outboxPruner
	windows     map[outbox.PruneScope]time.Duration
	parkedAfter int
	chunk       int
	now         func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Outbox == nil:
		return nil, errors.New("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:   params.Logger,
		db:     params.DB,
		outbox: params.Outbox,
		windows: map[outbox.PruneScope]time.Duration{
			outbox.PrunePublished: orDefault(params.Retention, defaultPublishedRetention),
			outbox.PruneParked:    orDefault(params.ParkedRetention, defaultParkedRetention),
		},
		parkedAfter: orDefault(params.ParkedAfter, defaultParkedAfter),
		chunk:       orDefault(params.ChunkSize, defaultPruneChunk),
		now:         time.Now,
	}, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run prunes settled ledger events past their window, published rows first.
// The ledger itself is never pruned.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	fields := map[string]any{"parked_after": j.parkedAfter}
	for _, scope := range []outbox.PruneScope{outbox.PrunePublished, outbox.PruneParked} {
		cutoff := now.Add(-j.windows[scope])
		deleted, err := j.prune(ctx, scope, cutoff)
		if err != nil {
			return fmt.Errorf("outbox retention (%s): %w", scope, err)
		}
		fields[scope.String()+"_cutoff"] = cutoff
		fields[scope.String()+"_deleted"] = deleted
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention cleanup complete")
	return nil
}

// prune deletes one chunk per transaction until a chunk comes back short.
func (j *outboxRetentionJob) prune(ctx context.Context, scope outbox.PruneScope, cutoff time.Time) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = j.outbox.Prune(ctx, tx, scope, cutoff, j.parkedAfter, j.chunk)
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(j.chunk) {
			return total, nil
		}
	}
}
