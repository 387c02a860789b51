package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/partnerledger-backend/api/responses"
	"github.com/angelmondragon/partnerledger-backend/api/validators"
	"github.com/angelmondragon/partnerledger-backend/internal/accrual"
	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

// AffiliateBalance returns per-currency totals and unsettled amounts.
func AffiliateBalance(svc ledger.Service, scope AffiliateScope, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		affiliateID, err := scope(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		balance, err := svc.Balance(ctx, affiliateID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// ListLedgerEntries pages raw ledger rows, newest first. ?type= may repeat.
func ListLedgerEntries(svc ledger.Service, scope AffiliateScope, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		affiliateID, err := scope(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		window, err := validators.ParseWindow(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		filter := ledger.EntryFilter{Window: window, Params: params}
		for _, raw := range r.URL.Query()["type"] {
			entryType, err := enums.ParseLedgerEntryType(strings.TrimSpace(raw))
			if err != nil {
				responses.WriteError(ctx, logg, w, fieldError("type", err))
				return
			}
			filter.Types = append(filter.Types, entryType)
		}

		page, err := svc.ListEntries(ctx, affiliateID, filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WritePage(w, newLedgerEntryResponses(page.Entries), page.NextCursor)
	}
}

type adjustmentRequest struct {
	AmountCents int64      `json:"amount_cents" validate:"ne=0"`
	Currency    string     `json:"currency" validate:"required,currency"`
	Reason      string     `json:"reason" validate:"required,max=500"`
	OccurredAt  *time.Time `json:"occurred_at,omitempty"`
}

// AdminRecordAdjustment appends a signed manual correction.
func AdminRecordAdjustment(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
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
		var req adjustmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entry, err := svc.RecordAdjustment(ctx, ledger.AdjustmentInput{
			AffiliateID: affiliateID,
			AmountCents: req.AmountCents,
			Currency:    req.Currency,
			ActorID:     actorID,
			Reason:      validators.SanitizeString(req.Reason, 500),
			OccurredAt:  req.OccurredAt,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newLedgerEntryResponse(entry))
	}
}

type accrualResponse struct {
	InvoiceID      string               `json:"invoice_id"`
	Accrued        bool                 `json:"accrued"`
	AlreadyAccrued bool                 `json:"already_accrued"`
	Skipped        bool                 `json:"skipped"`
	Reason         string               `json:"reason,omitempty"`
	Entry          *ledgerEntryResponse `json:"entry,omitempty"`
}

// AdminAccrueInvoice replays accrual for one mirrored invoice. Safe to repeat.
func AdminAccrueInvoice(svc accrual.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accrual service unavailable"))
			return
		}
		invoiceID, err := validators.ParseUUIDParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.AccrueEarning(ctx, invoiceID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		resp := accrualResponse{
			InvoiceID:      result.InvoiceID.String(),
			Accrued:        result.Accrued,
			AlreadyAccrued: result.AlreadyAccrued,
			Skipped:        result.Skipped,
			Reason:         result.Reason,
		}
		if result.Entry != nil {
			entry := newLedgerEntryResponse(result.Entry)
			resp.Entry = &entry
		}
		responses.WriteSuccess(w, resp)
	}
}
