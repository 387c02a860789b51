package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/partnerledger-backend/internal/accrual"
	"github.com/angelmondragon/partnerledger-backend/internal/affiliates"
	"github.com/angelmondragon/partnerledger-backend/internal/assignments"
	"github.com/angelmondragon/partnerledger-backend/internal/audit"
	"github.com/angelmondragon/partnerledger-backend/internal/cron"
	"github.com/angelmondragon/partnerledger-backend/internal/invoices"
	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	"github.com/angelmondragon/partnerledger-backend/internal/payouts"
	"github.com/angelmondragon/partnerledger-backend/pkg/config"
	"github.com/angelmondragon/partnerledger-backend/pkg/db"
	"github.com/angelmondragon/partnerledger-backend/pkg/instance"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
	"github.com/angelmondragon/partnerledger-backend/pkg/metrics"
	"github.com/angelmondragon/partnerledger-backend/pkg/migrate"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
	"github.com/angelmondragon/partnerledger-backend/pkg/redis"
	"github.com/angelmondragon/partnerledger-backend/pkg/traces"
)

func main() {
	once := flag.Bool("once", false, "run the selected jobs a single time and exit")
	jobs := flag.String("job", "", "comma-separated job names; empty runs all")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	shutdownTracing, err := traces.Init(ctx, "cron-worker", cfg.Tracing.OTLPEndpoint, logg)
	if err != nil {
		logg.Error(ctx, "failed to init tracing", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logg.Error(context.Background(), "error flushing traces", err)
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := metrics.NewRegistry()
	jobMetrics := metrics.NewCronJobMetrics(registry)
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	conn := dbClient.DB()
	affiliateRepo := affiliates.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)
	auditRepo := audit.NewRepository(conn)
	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	accrualSvc, err := accrual.NewService(accrual.Params{
		DB:          dbClient,
		Invoices:    invoices.NewRepository(conn),
		Assignments: assignments.NewRepository(conn),
		Affiliates:  affiliateRepo,
		Ledger:      ledgerRepo,
		Audit:       auditRepo,
		Outbox:      outboxSvc,
		Metrics:     ledgerMetrics,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create accrual service", err)
		os.Exit(1)
	}
	payoutSvc, err := payouts.NewService(payouts.Params{
		DB:         dbClient,
		Payouts:    payouts.NewRepository(conn),
		Ledger:     ledgerRepo,
		Affiliates: affiliateRepo,
		Audit:      auditRepo,
		Outbox:     outboxSvc,
		Metrics:    ledgerMetrics,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payout service", err)
		os.Exit(1)
	}

	backfillJob, err := cron.NewAccrualBackfillJob(cron.AccrualBackfillJobParams{
		Logger:    logg,
		Accrual:   accrualSvc,
		Lookback:  cfg.Payouts.BackfillLookback,
		BatchSize: cfg.Payouts.BatchSize,
	})
	if err != nil {
		logg.Error(ctx, "failed to create accrual backfill job", err)
		os.Exit(1)
	}
	generationJob, err := cron.NewPayoutGenerationJob(cron.PayoutGenerationJobParams{
		Logger:              logg,
		Ledger:              ledgerRepo,
		Affiliates:          affiliateRepo,
		Payouts:             payoutSvc,
		MinimumPayableCents: cfg.Payouts.MinimumPayableCents,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payout generation job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:          logg,
		DB:              dbClient,
		Outbox:          outboxRepo,
		Retention:       cfg.Outbox.Retention,
		ParkedRetention: cfg.Outbox.ParkedRetention,
		ParkedAfter:     cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox retention job", err)
		os.Exit(1)
	}

	jobRegistry, err := cron.NewRegistry(backfillJob, generationJob, retentionJob)
	if err != nil {
		logg.Error(ctx, "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+envOrLocal(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:    logg,
		Registry:  jobRegistry,
		Lock:      lock,
		Metrics:   jobMetrics,
		Interval:  cfg.Payouts.CronInterval,
		LockRenew: lock.TTL() / 4,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		go metrics.Serve(ctx, logg, *metricsAddr, registry)
	}

	if *once {
		if err := service.RunOnce(ctx, splitJobs(*jobs)...); err != nil {
			logg.Error(ctx, "cron run failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func splitJobs(raw string) []string {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
