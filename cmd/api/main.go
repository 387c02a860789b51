package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/partnerledger-backend/api/controllers"
	"github.com/angelmondragon/partnerledger-backend/api/routes"
	"github.com/angelmondragon/partnerledger-backend/internal/accrual"
	"github.com/angelmondragon/partnerledger-backend/internal/affiliates"
	"github.com/angelmondragon/partnerledger-backend/internal/assignments"
	"github.com/angelmondragon/partnerledger-backend/internal/audit"
	"github.com/angelmondragon/partnerledger-backend/internal/invoices"
	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	"github.com/angelmondragon/partnerledger-backend/internal/payouts"
	"github.com/angelmondragon/partnerledger-backend/internal/statements"
	stripewebhook "github.com/angelmondragon/partnerledger-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/partnerledger-backend/pkg/auth/session"
	"github.com/angelmondragon/partnerledger-backend/pkg/config"
	"github.com/angelmondragon/partnerledger-backend/pkg/db"
	"github.com/angelmondragon/partnerledger-backend/pkg/instance"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
	"github.com/angelmondragon/partnerledger-backend/pkg/metrics"
	"github.com/angelmondragon/partnerledger-backend/pkg/migrate"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
	"github.com/angelmondragon/partnerledger-backend/pkg/redis"
	"github.com/angelmondragon/partnerledger-backend/pkg/stripe"
	"github.com/angelmondragon/partnerledger-backend/pkg/traces"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := traces.Init(ctx, "api", cfg.Tracing.OTLPEndpoint, logg)
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
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	conn := dbClient.DB()
	affiliateRepo := affiliates.NewRepository(conn)
	assignmentRepo := assignments.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)
	invoiceRepo := invoices.NewRepository(conn)
	auditRepo := audit.NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	affiliateSvc, err := affiliates.NewService(dbClient, affiliateRepo, auditRepo, outboxSvc, logg, cfg.Payouts.DefaultCurrency)
	if err != nil {
		logg.Error(ctx, "failed to create affiliate service", err)
		os.Exit(1)
	}
	assignmentSvc, err := assignments.NewService(dbClient, assignmentRepo, affiliateRepo, auditRepo, outboxSvc, logg)
	if err != nil {
		logg.Error(ctx, "failed to create assignment service", err)
		os.Exit(1)
	}
	ledgerSvc, err := ledger.NewService(dbClient, ledgerRepo, affiliateRepo, auditRepo, outboxSvc, logg)
	if err != nil {
		logg.Error(ctx, "failed to create ledger service", err)
		os.Exit(1)
	}
	accrualSvc, err := accrual.NewService(accrual.Params{
		DB:          dbClient,
		Invoices:    invoiceRepo,
		Assignments: assignmentRepo,
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

	var stripeClient *stripe.Client
	if cfg.Stripe.APIKey != "" {
		stripeClient, err = stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			logg.Error(ctx, "failed to create stripe client", err)
			os.Exit(1)
		}
	}

	payoutParams := payouts.Params{
		DB:         dbClient,
		Payouts:    payouts.NewRepository(conn),
		Ledger:     ledgerRepo,
		Affiliates: affiliateRepo,
		Audit:      auditRepo,
		Outbox:     outboxSvc,
		Metrics:    ledgerMetrics,
		Logger:     logg,
	}
	if cfg.FeatureFlags.StripeDisbursals && stripeClient != nil {
		disburser, err := payouts.NewStripeDisburser(stripeClient)
		if err != nil {
			logg.Error(ctx, "failed to create stripe disburser", err)
			os.Exit(1)
		}
		payoutParams.Disburser = disburser
	}
	payoutSvc, err := payouts.NewService(payoutParams)
	if err != nil {
		logg.Error(ctx, "failed to create payout service", err)
		os.Exit(1)
	}
	statementSvc, err := statements.NewService(statements.NewRepository(conn), ledgerSvc, payoutSvc)
	if err != nil {
		logg.Error(ctx, "failed to create statement service", err)
		os.Exit(1)
	}

	services := routes.Services{
		Affiliates:  affiliateSvc,
		Assignments: assignmentSvc,
		Ledger:      ledgerSvc,
		Accrual:     accrualSvc,
		Payouts:     payoutSvc,
		Statements:  statementSvc,
	}
	if stripeClient != nil {
		invoiceSvc, err := invoices.NewService(invoiceRepo)
		if err != nil {
			logg.Error(ctx, "failed to create invoice service", err)
			os.Exit(1)
		}
		webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
			Invoices:     invoiceSvc,
			Accrual:      accrualSvc,
			Logger:       logg,
			DeferAccrual: !cfg.FeatureFlags.AccrueOnWebhook,
		})
		if err != nil {
			logg.Error(ctx, "failed to create stripe webhook service", err)
			os.Exit(1)
		}
		guard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe-webhook")
		if err != nil {
			logg.Error(ctx, "failed to create webhook idempotency guard", err)
			os.Exit(1)
		}
		services.StripeWebhook = webhookSvc
		services.StripeEvents = stripeClient.Verifier()
		services.WebhookGuard = guard
	}

	deps := routes.Dependencies{
		Store: redisClient,
		Readiness: map[string]controllers.Pinger{
			"postgres": dbClient,
			"redis":    redisClient,
		},
		Gatherer:    registry,
		HTTPMetrics: metrics.NewHTTPMetrics(registry),
	}
	if cfg.JWT.RequireSession {
		sessions, err := session.NewRegistry(redisClient)
		if err != nil {
			logg.Error(ctx, "failed to create session registry", err)
			os.Exit(1)
		}
		deps.Sessions = sessions
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps, services),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "graceful shutdown failed", err)
		}
	}
}
