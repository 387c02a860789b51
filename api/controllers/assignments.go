package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/partnerledger-backend/api/responses"
	"github.com/angelmondragon/partnerledger-backend/api/validators"
	"github.com/angelmondragon/partnerledger-backend/internal/affiliates"
	"github.com/angelmondragon/partnerledger-backend/internal/assignments"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

type createAssignmentRequest struct {
	AffiliateID     uuid.UUID       `json:"affiliate_id" validate:"required"`
	SourceType      string          `json:"source_type" validate:"required,oneof=listing tenant"`
	SourceID        uuid.UUID       `json:"source_id" validate:"required"`
	CommissionType  string          `json:"commission_type" validate:"required,oneof=percent fixed"`
	CommissionValue decimal.Decimal `json:"commission_value"`
	Currency        *string         `json:"currency,omitempty" validate:"omitempty,currency"`
	EffectiveFrom   *time.Time      `json:"effective_from,omitempty"`
	// Replace ends the source's current assignment before binding the new one.
	Replace bool   `json:"replace,omitempty"`
	Reason  string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// AdminCreateAssignment binds a revenue source to an affiliate.
func AdminCreateAssignment(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req createAssignmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		sourceType, err := enums.ParseRevenueSourceType(req.SourceType)
		if err != nil {
			responses.WriteError(ctx, logg, w, fieldError("source_type", err))
			return
		}
		commissionType, err := enums.ParseCommissionType(req.CommissionType)
		if err != nil {
			responses.WriteError(ctx, logg, w, fieldError("commission_type", err))
			return
		}
		input := assignments.CreateInput{
			AffiliateID:     req.AffiliateID,
			Source:          assignments.Source{Type: sourceType, ID: req.SourceID},
			CommissionType:  commissionType,
			CommissionValue: req.CommissionValue,
			Currency:        req.Currency,
			EffectiveFrom:   req.EffectiveFrom,
			ActorID:         actorID,
		}

		var assignment *models.CommissionAssignment
		if req.Replace {
			reason := validators.SanitizeString(req.Reason, 500)
			if reason == "" {
				reason = "reassigned"
			}
			assignment, err = svc.Reassign(ctx, input, reason)
		} else {
			assignment, err = svc.Create(ctx, input)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newAssignmentResponse(assignment))
	}
}

// AdminEndAssignment closes an active assignment now.
func AdminEndAssignment(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "assignmentId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ended, err := svc.End(ctx, id, actorID, validators.SanitizeString(req.Reason, 500))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAssignmentResponse(ended))
	}
}

type tenantResellerRequest struct {
	ResellerID uuid.UUID `json:"reseller_id" validate:"required"`
}

// AdminAssignTenantReseller moves a tenant under a reseller.
func AdminAssignTenantReseller(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		tenantID, err := validators.ParseUUIDParam(r, "tenantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req tenantResellerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		assignment, err := svc.AssignTenantToReseller(ctx, tenantID, req.ResellerID, actorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAssignmentResponse(assignment))
	}
}

// ListAssignments lists the scoped affiliate's assignments. Ended ones are
// included with ?include_ended=true.
func ListAssignments(svc assignments.Service, scope AffiliateScope, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		affiliateID, err := scope(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		includeEnded := false
		if raw := r.URL.Query().Get("include_ended"); raw != "" {
			includeEnded, err = strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, fieldError("include_ended", err))
				return
			}
		}

		rows, err := svc.ListByAffiliate(ctx, affiliateID, includeEnded)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAssignmentResponses(rows))
	}
}

type createListingRequest struct {
	Name            string          `json:"name" validate:"required,max=200"`
	Description     *string         `json:"description,omitempty" validate:"omitempty,max=2000"`
	PriceCents      int64           `json:"price_cents" validate:"gte=0"`
	Currency        string          `json:"currency" validate:"required,currency"`
	CommissionType  string          `json:"commission_type" validate:"required,oneof=percent fixed"`
	CommissionValue decimal.Decimal `json:"commission_value"`
}

// CreateListing publishes a listing under the caller's partner account and
// binds it to that account.
func CreateListing(svc assignments.Service, accounts affiliates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		partner, err := resolveOwnAccount(r, accounts, enums.AffiliateKindPartner)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req createListingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		commissionType, err := enums.ParseCommissionType(req.CommissionType)
		if err != nil {
			responses.WriteError(ctx, logg, w, fieldError("commission_type", err))
			return
		}

		result, err := svc.CreateListing(ctx, partner.ID, partner.OwnerID, assignments.ListingInput{
			Name:            validators.SanitizeString(req.Name, 200),
			Description:     req.Description,
			PriceCents:      req.PriceCents,
			Currency:        req.Currency,
			CommissionType:  commissionType,
			CommissionValue: req.CommissionValue,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		listing := result.Listing
		responses.WriteSuccessStatus(w, http.StatusCreated, listingResponse{
			ID:          listing.ID,
			PartnerID:   listing.PartnerID,
			Name:        listing.Name,
			Description: listing.Description,
			PriceCents:  listing.PriceCents,
			Currency:    listing.Currency,
			Active:      listing.Active,
			Assignment:  newAssignmentResponse(result.Assignment),
			CreatedAt:   listing.CreatedAt,
		})
	}
}
