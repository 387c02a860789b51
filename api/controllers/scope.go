package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/partnerledger-backend/api/middleware"
	"github.com/angelmondragon/partnerledger-backend/api/validators"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
)

type ownerLookup interface {
	GetByOwner(ctx context.Context, kind enums.AffiliateKind, ownerID uuid.UUID) (*models.Affiliate, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Affiliate, error)
}

// AffiliateScope resolves which affiliate account a request reads.
type AffiliateScope func(r *http.Request) (uuid.UUID, error)

// PathAffiliate reads the account from the affiliateId URL parameter.
// Mounted only under admin routes.
func PathAffiliate() AffiliateScope {
	return func(r *http.Request) (uuid.UUID, error) {
		return validators.ParseUUIDParam(r, "affiliateId")
	}
}

// SelfAffiliate resolves the caller's own account. A user owning both a
// partner and a reseller account picks one with ?kind=.
func SelfAffiliate(lookup ownerLookup) AffiliateScope {
	return func(r *http.Request) (uuid.UUID, error) {
		account, err := resolveOwnAccount(r, lookup, "")
		if err != nil {
			return uuid.Nil, err
		}
		return account.ID, nil
	}
}

func resolveOwnAccount(r *http.Request, lookup ownerLookup, forced enums.AffiliateKind) (*models.Affiliate, error) {
	if lookup == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "affiliate service unavailable")
	}
	ownerID, err := requireActor(r)
	if err != nil {
		return nil, err
	}
	ctx := r.Context()

	kind := forced
	if kind == "" {
		if raw := strings.TrimSpace(r.URL.Query().Get("kind")); raw != "" {
			parsed, err := enums.ParseAffiliateKind(raw)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind").WithDetails(map[string]any{"field": "kind"})
			}
			kind = parsed
		}
	}
	if kind != "" {
		return lookup.GetByOwner(ctx, kind, ownerID)
	}

	accounts, err := lookup.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	switch len(accounts) {
	case 0:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no affiliate account for caller")
	case 1:
		return &accounts[0], nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "caller owns several accounts; pass kind").WithDetails(map[string]any{"field": "kind"})
	}
}

func requireActor(r *http.Request) (uuid.UUID, error) {
	actorID, ok := middleware.ActorIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	return actorID, nil
}

// decodeOptionalBody tolerates an empty body for endpoints whose fields are
// all optional.
func decodeOptionalBody(r *http.Request, dest any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return validators.DecodeJSONBody(r, dest)
}
