package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/partnerledger-backend/api/responses"
	"github.com/angelmondragon/partnerledger-backend/api/validators"
	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	"github.com/angelmondragon/partnerledger-backend/internal/payouts"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

type generatePayoutRequest struct {
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	Currency string     `json:"currency,omitempty" validate:"omitempty,currency"`
}

// AdminGeneratePayout consumes the affiliate's unsettled entries into a new
// owed payout.
func AdminGeneratePayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		affiliateID, err := validators.ParseUUIDParam(r, "affiliateId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req generatePayoutRequest
		if err := decodeOptionalBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payout, err := svc.Generate(ctx, affiliateID, payouts.GenerateInput{
			Window:   ledger.Window{Start: req.From, End: req.To},
			Currency: req.Currency,
			ActorID:  &actorID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPayoutResponse(payout))
	}
}

// AdminPayoutQueue pages payouts in one status, oldest first. Defaults to owed.
func AdminPayoutQueue(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		status := enums.PayoutStatusOwed
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParsePayoutStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, fieldError("status", err))
				return
			}
			status = parsed
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := svc.ListByStatus(ctx, status, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WritePage(w, newPayoutResponses(page.Payouts), page.NextCursor)
	}
}

func AdminGetPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payout, err := svc.Get(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}

// AdminApprovePayout moves an owed payout to approved.
func AdminApprovePayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		reviewerID, err := requireActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payout, err := svc.Approve(ctx, id, reviewerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}

type settlePayoutRequest struct {
	Method    string `json:"method" validate:"required"`
	Reference string `json:"reference,omitempty" validate:"omitempty,max=200"`
}

// AdminSettlePayout marks an approved payout paid, disbursing first when the
// method is stripe_connect.
func AdminSettlePayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req settlePayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		method, err := enums.ParsePayoutMethod(req.Method)
		if err != nil {
			responses.WriteError(ctx, logg, w, fieldError("method", err))
			return
		}

		payout, err := svc.Settle(ctx, id, payouts.SettleInput{
			Method:    method,
			Reference: strings.TrimSpace(req.Reference),
		}, actorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}

// AdminVoidPayout cancels an unpaid payout and releases its entries.
func AdminVoidPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payout, err := svc.Void(ctx, id, validators.SanitizeString(req.Reason, 500), actorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}
