package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/partnerledger-backend/api/responses"
	"github.com/angelmondragon/partnerledger-backend/api/validators"
	"github.com/angelmondragon/partnerledger-backend/internal/affiliates"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

type applyRequest struct {
	Kind            string           `json:"kind" validate:"required,oneof=partner reseller"`
	DisplayName     string           `json:"display_name" validate:"required,max=200"`
	ContactEmail    string           `json:"contact_email" validate:"required,email"`
	ContactPhone    *string          `json:"contact_phone,omitempty" validate:"omitempty,max=40"`
	PayoutMethod    string           `json:"payout_method" validate:"required"`
	PayoutDetails   json.RawMessage  `json:"payout_details,omitempty"`
	CommissionType  *string          `json:"commission_type,omitempty"`
	CommissionValue *decimal.Decimal `json:"commission_value,omitempty"`
	Currency        string           `json:"currency,omitempty" validate:"omitempty,currency"`
}

func (req applyRequest) toInput(ownerID uuid.UUID) (affiliates.ApplyInput, error) {
	kind, err := enums.ParseAffiliateKind(req.Kind)
	if err != nil {
		return affiliates.ApplyInput{}, fieldError("kind", err)
	}
	method, err := enums.ParsePayoutMethod(req.PayoutMethod)
	if err != nil {
		return affiliates.ApplyInput{}, fieldError("payout_method", err)
	}
	input := affiliates.ApplyInput{
		Kind:            kind,
		OwnerID:         ownerID,
		DisplayName:     validators.SanitizeString(req.DisplayName, 200),
		ContactEmail:    strings.TrimSpace(req.ContactEmail),
		ContactPhone:    req.ContactPhone,
		PayoutMethod:    method,
		PayoutDetails:   req.PayoutDetails,
		CommissionValue: req.CommissionValue,
		Currency:        req.Currency,
	}
	if req.CommissionType != nil {
		ct, err := enums.ParseCommissionType(*req.CommissionType)
		if err != nil {
			return affiliates.ApplyInput{}, fieldError("commission_type", err)
		}
		input.CommissionType = &ct
	}
	return input, nil
}

// ApplyAffiliate opens a partner or reseller account for the caller.
func ApplyAffiliate(svc affiliates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "affiliate service unavailable"))
			return
		}
		ownerID, err := requireActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req applyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		input, err := req.toInput(ownerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Apply(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, newAffiliateResponse(result.Account))
	}
}

// MyAffiliates lists every account the caller owns.
func MyAffiliates(svc affiliates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "affiliate service unavailable"))
			return
		}
		ownerID, err := requireActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		accounts, err := svc.ListByOwner(ctx, ownerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAffiliateResponses(accounts))
	}
}

type payoutPreferencesRequest struct {
	PayoutMethod  string          `json:"payout_method" validate:"required"`
	PayoutDetails json.RawMessage `json:"payout_details,omitempty"`
}

// UpdatePayoutPreferences changes how the caller's account is paid.
func UpdatePayoutPreferences(svc affiliates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "affiliate service unavailable"))
			return
		}
		account, err := resolveOwnAccount(r, svc, "")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req payoutPreferencesRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		method, err := enums.ParsePayoutMethod(req.PayoutMethod)
		if err != nil {
			responses.WriteError(ctx, logg, w, fieldError("payout_method", err))
			return
		}

		updated, err := svc.UpdatePayoutPreferences(ctx, account.ID, affiliates.PayoutPreferencesInput{
			PayoutMethod:  method,
			PayoutDetails: req.PayoutDetails,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAffiliateResponse(updated))
	}
}

// AdminListAffiliates pages accounts filtered by kind and status.
func AdminListAffiliates(svc affiliates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "affiliate service unavailable"))
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		filter := affiliates.ListFilter{Params: params}
		query := r.URL.Query()
		if raw := strings.TrimSpace(query.Get("kind")); raw != "" {
			kind, err := enums.ParseAffiliateKind(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, fieldError("kind", err))
				return
			}
			filter.Kind = &kind
		}
		if raw := strings.TrimSpace(query.Get("status")); raw != "" {
			status, err := enums.ParseAffiliateStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, fieldError("status", err))
				return
			}
			filter.Status = &status
		}

		page, err := svc.List(ctx, filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WritePage(w, newAffiliateResponses(page.Accounts), page.NextCursor)
	}
}

func AdminGetAffiliate(svc affiliates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "affiliate service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "affiliateId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		account, err := svc.Get(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAffiliateResponse(account))
	}
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func AdminApproveAffiliate(svc affiliates.Service, logg *logger.Logger) http.HandlerFunc {
	return affiliateTransition(svc, logg, false, func(r *http.Request, id, actor uuid.UUID, _ string) (*models.Affiliate, error) {
		return svc.Approve(r.Context(), id, actor)
	})
}

func AdminRejectAffiliate(svc affiliates.Service, logg *logger.Logger) http.HandlerFunc {
	return affiliateTransition(svc, logg, true, func(r *http.Request, id, actor uuid.UUID, reason string) (*models.Affiliate, error) {
		return svc.Reject(r.Context(), id, actor, reason)
	})
}

func AdminSuspendAffiliate(svc affiliates.Service, logg *logger.Logger) http.HandlerFunc {
	return affiliateTransition(svc, logg, true, func(r *http.Request, id, actor uuid.UUID, reason string) (*models.Affiliate, error) {
		return svc.Suspend(r.Context(), id, actor, reason)
	})
}

func AdminReactivateAffiliate(svc affiliates.Service, logg *logger.Logger) http.HandlerFunc {
	return affiliateTransition(svc, logg, false, func(r *http.Request, id, actor uuid.UUID, _ string) (*models.Affiliate, error) {
		return svc.Reactivate(r.Context(), id, actor)
	})
}

type affiliateAction func(r *http.Request, id, actor uuid.UUID, reason string) (*models.Affiliate, error)

func affiliateTransition(svc affiliates.Service, logg *logger.Logger, needsReason bool, action affiliateAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "affiliate service unavailable"))
			return
		}
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "affiliateId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var reason string
		if needsReason {
			var req reasonRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			reason = validators.SanitizeString(req.Reason, 500)
		}

		account, err := action(r, id, actorID, reason)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAffiliateResponse(account))
	}
}

func fieldError(field string, err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field).WithDetails(map[string]any{"field": field})
}
