package controllers

import (
	"net/http"

	"github.com/angelmondragon/partnerledger-backend/api/responses"
	"github.com/angelmondragon/partnerledger-backend/api/validators"
	"github.com/angelmondragon/partnerledger-backend/internal/statements"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

// AffiliateStatement summarizes activity in the optional from/to window.
func AffiliateStatement(svc statements.Service, scope AffiliateScope, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "statement service unavailable"))
			return
		}
		affiliateID, err := scope(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		window, err := validators.ParseWindow(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		statement, err := svc.GetStatement(ctx, affiliateID, window)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, statement)
	}
}

// AffiliateEarnings pages earned entries with their invoice split.
func AffiliateEarnings(svc statements.Service, scope AffiliateScope, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "statement service unavailable"))
			return
		}
		affiliateID, err := scope(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		window, err := validators.ParseWindow(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := svc.ListEarnings(ctx, affiliateID, window, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WritePage(w, newLedgerEntryResponses(page.Entries), page.NextCursor)
	}
}

// AffiliatePayouts lists the affiliate's payouts, newest first.
func AffiliatePayouts(svc statements.Service, scope AffiliateScope, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "statement service unavailable"))
			return
		}
		affiliateID, err := scope(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		rows, err := svc.ListPayouts(ctx, affiliateID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutResponses(rows))
	}
}
