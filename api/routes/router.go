package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v81"

	"github.com/angelmondragon/partnerledger-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/partnerledger-backend/api/controllers/webhooks"
	"github.com/angelmondragon/partnerledger-backend/api/middleware"
	"github.com/angelmondragon/partnerledger-backend/internal/accrual"
	"github.com/angelmondragon/partnerledger-backend/internal/affiliates"
	"github.com/angelmondragon/partnerledger-backend/internal/assignments"
	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	"github.com/angelmondragon/partnerledger-backend/internal/payouts"
	"github.com/angelmondragon/partnerledger-backend/internal/statements"
	"github.com/angelmondragon/partnerledger-backend/pkg/auth/session"
	"github.com/angelmondragon/partnerledger-backend/pkg/config"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
	"github.com/angelmondragon/partnerledger-backend/pkg/metrics"
)

// Store backs HTTP idempotency and rate limiting.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type stripeWebhookGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type stripeVerifier interface {
	VerifyEvent(payload []byte, header string) (stripe.Event, error)
}

// Services are the domain services the HTTP surface exposes.
type Services struct {
	Affiliates  affiliates.Service
	Assignments assignments.Service
	Ledger      ledger.Service
	Accrual     accrual.Service
	Payouts     payouts.Service
	Statements  statements.Service

	StripeWebhook webhookcontrollers.StripeWebhookService
	StripeEvents  stripeVerifier
	WebhookGuard  stripeWebhookGuard
}

// Dependencies are the infrastructure handles the router needs. Sessions is
// nil unless JWT session revocation is enabled.
type Dependencies struct {
	Store       Store
	Sessions    session.AccessSessionChecker
	Readiness   map[string]controllers.Pinger
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	apiPolicy := middleware.RateLimitPolicy{
		Name:   "api",
		Window: cfg.HTTP.RateLimitWindow,
		Limit:  cfg.HTTP.RateLimitRequests,
	}
	webhookPolicy := middleware.RateLimitPolicy{
		Name:   "webhook",
		Window: cfg.HTTP.RateLimitWindow,
		Limit:  cfg.HTTP.WebhookRateLimit,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Readiness, logg))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, deps.Store, logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(svc.StripeWebhook, svc.StripeEvents, svc.WebhookGuard, logg))
	})

	self := controllers.SelfAffiliate(svc.Affiliates)
	byPath := controllers.PathAffiliate()

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.RateLimit(apiPolicy, deps.Store, logg))
		r.Use(middleware.Idempotency(deps.Store, logg))

		r.Route("/affiliates", func(r chi.Router) {
			r.Post("/apply", controllers.ApplyAffiliate(svc.Affiliates, logg))
			r.Route("/me", func(r chi.Router) {
				r.Get("/", controllers.MyAffiliates(svc.Affiliates, logg))
				r.Put("/payout-preferences", controllers.UpdatePayoutPreferences(svc.Affiliates, logg))
				r.Get("/balance", controllers.AffiliateBalance(svc.Ledger, self, logg))
				r.Get("/earnings", controllers.AffiliateEarnings(svc.Statements, self, logg))
				r.Get("/ledger", controllers.ListLedgerEntries(svc.Ledger, self, logg))
				r.Get("/payouts", controllers.AffiliatePayouts(svc.Statements, self, logg))
				r.Get("/statement", controllers.AffiliateStatement(svc.Statements, self, logg))
				r.Get("/assignments", controllers.ListAssignments(svc.Assignments, self, logg))
				r.Post("/listings", controllers.CreateListing(svc.Assignments, svc.Affiliates, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin, enums.ActorRoleReviewer))
		r.Use(middleware.RateLimit(apiPolicy, deps.Store, logg))
		r.Use(middleware.Idempotency(deps.Store, logg))

		adminOnly := middleware.RequireRole(logg, enums.ActorRoleAdmin)

		r.Route("/affiliates", func(r chi.Router) {
			r.Get("/", controllers.AdminListAffiliates(svc.Affiliates, logg))
			r.Route("/{affiliateId}", func(r chi.Router) {
				r.Get("/", controllers.AdminGetAffiliate(svc.Affiliates, logg))
				r.Get("/balance", controllers.AffiliateBalance(svc.Ledger, byPath, logg))
				r.Get("/earnings", controllers.AffiliateEarnings(svc.Statements, byPath, logg))
				r.Get("/ledger", controllers.ListLedgerEntries(svc.Ledger, byPath, logg))
				r.Get("/statement", controllers.AffiliateStatement(svc.Statements, byPath, logg))
				r.Get("/assignments", controllers.ListAssignments(svc.Assignments, byPath, logg))
				r.Get("/payouts", controllers.AffiliatePayouts(svc.Statements, byPath, logg))
				r.Post("/payouts", controllers.AdminGeneratePayout(svc.Payouts, logg))

				r.Group(func(r chi.Router) {
					r.Use(adminOnly)
					r.Post("/approve", controllers.AdminApproveAffiliate(svc.Affiliates, logg))
					r.Post("/reject", controllers.AdminRejectAffiliate(svc.Affiliates, logg))
					r.Post("/suspend", controllers.AdminSuspendAffiliate(svc.Affiliates, logg))
					r.Post("/reactivate", controllers.AdminReactivateAffiliate(svc.Affiliates, logg))
					r.Post("/adjustments", controllers.AdminRecordAdjustment(svc.Ledger, logg))
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Post("/assignments", controllers.AdminCreateAssignment(svc.Assignments, logg))
			r.Post("/assignments/{assignmentId}/end", controllers.AdminEndAssignment(svc.Assignments, logg))
			r.Post("/tenants/{tenantId}/reseller", controllers.AdminAssignTenantReseller(svc.Assignments, logg))
			r.Post("/invoices/{invoiceId}/accrue", controllers.AdminAccrueInvoice(svc.Accrual, logg))
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Get("/", controllers.AdminPayoutQueue(svc.Payouts, logg))
			r.Get("/{payoutId}", controllers.AdminGetPayout(svc.Payouts, logg))
			r.Post("/{payoutId}/approve", controllers.AdminApprovePayout(svc.Payouts, logg))
			r.Post("/{payoutId}/settle", controllers.AdminSettlePayout(svc.Payouts, logg))
			r.Post("/{payoutId}/void", controllers.AdminVoidPayout(svc.Payouts, logg))
		})
	})

	return r
}
