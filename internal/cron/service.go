package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
	"github.com/angelmondragon/partnerledger-backend/pkg/metrics"
)

const (
	defaultInterval   = time.Hour
	defaultJobTimeout = 30 * time.Minute
	defaultLockRenew  = 20 * time.Minute
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds a single job run.
	JobTimeout time.Duration
	// LockRenew is how often a running cycle extends its lease.
	LockRenew time.Duration
}

// Service runs the registered ledger jobs on a fixed cadence while holding
// the cluster-wide lock.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	lockRenew  time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	jobTimeout := params.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	lockRenew := params.LockRenew
	if lockRenew <= 0 {
		lockRenew = defaultLockRenew
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: jobTimeout,
		lockRenew:  lockRenew,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if err := s.RunOnce(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

// RunOnce runs one locked cycle. With names, only those jobs run, in the
// order given. A failing job does not stop the jobs after it; all failures
// are returned together.
func (s *Service) RunOnce(ctx context.Context, names ...string) error {
	jobs, err := s.selectJobs(names)
	if err != nil {
		return err
	}
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron worker holds the lock; skipping cycle")
		for _, job := range jobs {
			s.metrics.ObserveSkipped(job.Name())
		}
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	cycleCtx, cancel := context.WithCancelCause(ctx)
	renewing := make(chan struct{})
	go func() {
		defer close(renewing)
		keepLease(cycleCtx, s.lock, s.lockRenew, func(err error) {
			if errors.Is(err, ErrLeaseLost) {
				s.logg.Error(ctx, "cron lock lease lost; aborting cycle", err)
				cancel(err)
				return
			}
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cron lock refresh failed")
		})
	}()
	defer func() {
		cancel(nil)
		<-renewing
	}()

	var errs error
	for _, job := range jobs {
		if err := s.runJob(cycleCtx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return errs
}

func (s *Service) selectJobs(names []string) ([]Job, error) {
	if len(names) == 0 {
		return s.registry.Jobs(), nil
	}
	jobs := make([]Job, 0, len(names))
	for _, name := range names {
		job, ok := s.registry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown cron job %q", name)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	jobCtx, cancel := context.WithTimeout(jobCtx, s.jobTimeout)
	defer cancel()

	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveRun(job.Name(), duration, err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return err
	}
	s.logg.Info(jobCtx, "job completed")
	return nil
}
