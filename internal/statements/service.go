// Package statements projects ledger activity into period reports. Nothing
// here decides what has been paid; payouts own that.
package statements

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/pagination"
)

// Statement is an affiliate's activity over a window.
type Statement struct {
	AffiliateID uuid.UUID        `json:"affiliate_id"`
	PeriodStart *time.Time       `json:"period_start,omitempty"`
	PeriodEnd   *time.Time       `json:"period_end,omitempty"`
	Totals      []CurrencyTotals `json:"totals"`
	GeneratedAt time.Time        `json:"generated_at"`
}

type payoutLister interface {
	ListByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.Payout, error)
}

// Service serves read-only statement views.
type Service interface {
	GetStatement(ctx context.Context, affiliateID uuid.UUID, window ledger.Window) (*Statement, error)
	ListEarnings(ctx context.Context, affiliateID uuid.UUID, window ledger.Window, params pagination.Params) (*ledger.EntryPage, error)
	ListPayouts(ctx context.Context, affiliateID uuid.UUID) ([]models.Payout, error)
}

type service struct {
	repo    Repository
	ledger  ledger.Service
	payouts payoutLister
	now     func() time.Time
}

// NewService wires statements over the ledger and payout readers.
func NewService(repo Repository, ledgerSvc ledger.Service, payouts payoutLister) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("statement repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if payouts == nil {
		return nil, fmt.Errorf("payout lister required")
	}
	return &service{
		repo:    repo,
		ledger:  ledgerSvc,
		payouts: payouts,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) GetStatement(ctx context.Context, affiliateID uuid.UUID, window ledger.Window) (*Statement, error) {
	if affiliateID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "affiliate id is required")
	}
	if err := window.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid window")
	}
	rows, err := s.repo.Totals(ctx, affiliateID, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute statement")
	}
	if rows == nil {
		rows = []CurrencyTotals{}
	}
	return &Statement{
		AffiliateID: affiliateID,
		PeriodStart: window.Start,
		PeriodEnd:   window.End,
		Totals:      rows,
		GeneratedAt: s.now(),
	}, nil
}

func (s *service) ListEarnings(ctx context.Context, affiliateID uuid.UUID, window ledger.Window, params pagination.Params) (*ledger.EntryPage, error) {
	return s.ledger.ListEntries(ctx, affiliateID, ledger.EntryFilter{
		Types:  []enums.LedgerEntryType{enums.LedgerEntryEarned},
		Window: window,
		Params: params,
	})
}

func (s *service) ListPayouts(ctx context.Context, affiliateID uuid.UUID) ([]models.Payout, error) {
	return s.payouts.ListByAffiliate(ctx, affiliateID)
}
