package affiliates

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	"github.com/angelmondragon/partnerledger-backend/pkg/pagination"
)

// ApplyInput captures an application for a partner or reseller account.
type ApplyInput struct {
	Kind            enums.AffiliateKind
	OwnerID         uuid.UUID
	DisplayName     string
	ContactEmail    string
	ContactPhone    *string
	PayoutMethod    enums.PayoutMethod
	PayoutDetails   json.RawMessage
	CommissionType  *enums.CommissionType
	CommissionValue *decimal.Decimal
	Currency        string
}

// ApplyResult wraps the created account.
type ApplyResult struct {
	Account *models.Affiliate
	Created bool
}

// PayoutPreferencesInput updates how an affiliate is paid.
type PayoutPreferencesInput struct {
	PayoutMethod  enums.PayoutMethod
	PayoutDetails json.RawMessage
}

// ListFilter narrows the admin account listing.
type ListFilter struct {
	Kind   *enums.AffiliateKind
	Status *enums.AffiliateStatus
	pagination.Params
}

// ListResult is one page of accounts.
type ListResult struct {
	Accounts   []models.Affiliate
	NextCursor string
}
