package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/internal/affiliates"
	"github.com/angelmondragon/partnerledger-backend/internal/audit"
	"github.com/angelmondragon/partnerledger-backend/internal/commission"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/partnerledger-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Balance summarizes an affiliate's ledger. Total sums every entry;
// Unsettled sums earned and adjustment rows no live payout has consumed.
type Balance struct {
	AffiliateID uuid.UUID         `json:"affiliate_id"`
	Currencies  []CurrencyBalance `json:"currencies"`
}

// For returns the balance in currency, zero when absent.
func (b Balance) For(currency string) CurrencyBalance {
	currency = commission.NormalizeCurrency(currency)
	for _, c := range b.Currencies {
		if c.Currency == currency {
			return c
		}
	}
	return CurrencyBalance{Currency: currency}
}

// AdjustmentInput is a manual signed correction.
type AdjustmentInput struct {
	AffiliateID uuid.UUID
	AmountCents int64
	Currency    string
	ActorID     uuid.UUID
	Reason      string
	OccurredAt  *time.Time
}

// EntryPage is one page of ledger entries.
type EntryPage struct {
	Entries    []models.LedgerEntry `json:"entries"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// Service reads and appends to the commission ledger.
type Service interface {
	Balance(ctx context.Context, affiliateID uuid.UUID) (*Balance, error)
	UnsettledEntries(ctx context.Context, affiliateID uuid.UUID, window Window) ([]models.LedgerEntry, error)
	RecordAdjustment(ctx context.Context, input AdjustmentInput) (*models.LedgerEntry, error)
	ListEntries(ctx context.Context, affiliateID uuid.UUID, filter EntryFilter) (*EntryPage, error)
}

type service struct {
	tx         txRunner
	repo       Repository
	affiliates affiliates.Repository
	audit      audit.Recorder
	outbox     outboxPublisher
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires the ledger service.
func NewService(tx txRunner, repo Repository, affiliateRepo affiliates.Repository, recorder audit.Recorder, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if affiliateRepo == nil {
		return nil, fmt.Errorf("affiliate repository required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:         tx,
		repo:       repo,
		affiliates: affiliateRepo,
		audit:      recorder,
		outbox:     publisher,
		logg:       logg,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Balance(ctx context.Context, affiliateID uuid.UUID) (*Balance, error) {
	if affiliateID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "affiliate id is required")
	}
	rows, err := s.repo.Balances(ctx, affiliateID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute balance")
	}
	if rows == nil {
		rows = []CurrencyBalance{}
	}
	return &Balance{AffiliateID: affiliateID, Currencies: rows}, nil
}

func (s *service) UnsettledEntries(ctx context.Context, affiliateID uuid.UUID, window Window) ([]models.LedgerEntry, error) {
	if err := window.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid window")
	}
	entries, err := s.repo.UnsettledEntries(ctx, affiliateID, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unsettled entries")
	}
	return entries, nil
}

func (s *service) RecordAdjustment(ctx context.Context, input AdjustmentInput) (*models.LedgerEntry, error) {
	if input.AffiliateID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "affiliate id is required")
	}
	if input.AmountCents == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment amount must be non-zero")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}

	var entry *models.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		account, err := s.affiliates.WithTx(tx).FindByID(ctx, input.AffiliateID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "affiliate not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load affiliate")
		}
		currency := commission.NormalizeCurrency(input.Currency)
		if currency == "" {
			currency = account.Currency
		}
		if len(currency) != 3 {
			return pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3-letter ISO code")
		}

		occurredAt := s.now()
		if input.OccurredAt != nil {
			occurredAt = input.OccurredAt.UTC()
		}
		actor := input.ActorID
		entry = &models.LedgerEntry{
			AffiliateID: account.ID,
			Type:        enums.LedgerEntryAdjustment,
			AmountCents: input.AmountCents,
			Currency:    currency,
			ActorID:     &actor,
			Reason:      &reason,
			OccurredAt:  occurredAt,
		}
		if err := s.repo.WithTx(tx).Append(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append adjustment")
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			AffiliateID: account.ID,
			Action:      enums.AuditLedgerAdjusted,
			ActorID:     &actor,
			Reason:      reason,
			Metadata: map[string]any{
				"ledger_entry_id": entry.ID.String(),
				"amount_cents":    entry.AmountCents,
				"currency":        currency,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record audit")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLedgerAdjusted,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   entry.ID,
			AffiliateID:   account.ID,
			Actor:         outbox.ActorFor(&actor),
			Data: payloads.LedgerAdjustedEvent{
				LedgerEntryID: entry.ID,
				AffiliateID:   account.ID,
				AmountCents:   entry.AmountCents,
				Currency:      currency,
				Reason:        reason,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit adjustment event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithAffiliateID(ctx, entry.AffiliateID.String()), map[string]any{
		"ledger_entry_id": entry.ID.String(),
		"amount_cents":    entry.AmountCents,
		"currency":        entry.Currency,
	})
	s.logg.Info(logCtx, "ledger adjustment recorded")
	return entry, nil
}

func (s *service) ListEntries(ctx context.Context, affiliateID uuid.UUID, filter EntryFilter) (*EntryPage, error) {
	if err := filter.Window.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid window")
	}
	for _, t := range filter.Types {
		if !t.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid entry type %q", t))
		}
	}
	if _, err := pagination.ParseCursor(filter.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, affiliateID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	page := &EntryPage{}
	page.Entries, page.NextCursor = pagination.Trim(rows, filter.Limit, func(e models.LedgerEntry) pagination.Cursor {
		return pagination.Cursor{At: e.OccurredAt, ID: e.ID}
	})
	return page, nil
}
