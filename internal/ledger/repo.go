package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	"github.com/angelmondragon/partnerledger-backend/pkg/pagination"
)

// unconsumed matches ledger rows not held by a live payout.
const unconsumed = `NOT EXISTS (
	SELECT 1 FROM payout_entries pe
	WHERE pe.ledger_entry_id = ledger_entries.id AND pe.released_at IS NULL)`

// Window is a half-open [Start, End) range on occurred_at. Either bound may
// be nil.
type Window struct {
	Start *time.Time
	End   *time.Time
}

// Validate rejects inverted windows.
func (w Window) Validate() error {
	if w.Start != nil && w.End != nil && !w.Start.Before(*w.End) {
		return fmt.Errorf("window start must be before end")
	}
	return nil
}

// Apply restricts query to the window on column.
func (w Window) Apply(query *gorm.DB, column string) *gorm.DB {
	if w.Start != nil {
		query = query.Where(column+" >= ?", w.Start.UTC())
	}
	if w.End != nil {
		query = query.Where(column+" < ?", w.End.UTC())
	}
	return query
}

// CurrencyBalance is the per-currency view of an affiliate's ledger.
type CurrencyBalance struct {
	Currency       string `gorm:"column:currency" json:"currency"`
	TotalCents     int64  `gorm:"column:total_cents" json:"total_cents"`
	UnsettledCents int64  `gorm:"column:unsettled_cents" json:"unsettled_cents"`
}

// EntryFilter narrows ListEntries.
type EntryFilter struct {
	Types  []enums.LedgerEntryType
	Window Window
	pagination.Params
}

// Repository exposes append-only access to ledger_entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, entry *models.LedgerEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error)
	FindEarned(ctx context.Context, affiliateID, invoiceID uuid.UUID) (*models.LedgerEntry, error)
	Balances(ctx context.Context, affiliateID uuid.UUID) ([]CurrencyBalance, error)
	UnsettledEntries(ctx context.Context, affiliateID uuid.UUID, window Window) ([]models.LedgerEntry, error)
	LockUnsettled(ctx context.Context, affiliateID uuid.UUID, window Window) ([]models.LedgerEntry, error)
	List(ctx context.Context, affiliateID uuid.UUID, filter EntryFilter) ([]models.LedgerEntry, error)
	AffiliatesWithUnsettled(ctx context.Context, minimumCents int64) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds ledger persistence to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Append inserts a new entry. There is deliberately no update or delete.
func (r *repository) Append(ctx context.Context, entry *models.LedgerEntry) error {
	if entry == nil {
		return fmt.Errorf("ledger entry is required")
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindEarned(ctx context.Context, affiliateID, invoiceID uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("affiliate_id = ? AND invoice_id = ? AND type = ?", affiliateID, invoiceID, enums.LedgerEntryEarned).
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) Balances(ctx context.Context, affiliateID uuid.UUID) ([]CurrencyBalance, error) {
	var rows []CurrencyBalance
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select(`currency,
			COALESCE(SUM(amount_cents), 0) AS total_cents,
			COALESCE(SUM(CASE WHEN type IN ? AND `+unconsumed+` THEN amount_cents ELSE 0 END), 0) AS unsettled_cents`,
			settleableTypes()).
		Where("affiliate_id = ?", affiliateID).
		Group("currency").
		Order("currency").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) unsettledQuery(ctx context.Context, affiliateID uuid.UUID, window Window) *gorm.DB {
	query := r.db.WithContext(ctx).
		Where("affiliate_id = ? AND type IN ?", affiliateID, settleableTypes()).
		Where(unconsumed)
	return window.Apply(query, "occurred_at").
		Order("occurred_at ASC").
		Order("id ASC")
}

// UnsettledEntries lists earned and adjustment rows not consumed by a live payout.
func (r *repository) UnsettledEntries(ctx context.Context, affiliateID uuid.UUID, window Window) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.unsettledQuery(ctx, affiliateID, window).Find(&entries).Error
	return entries, err
}

// LockUnsettled is UnsettledEntries with the candidate rows locked. It must
// run inside the payout transaction.
func (r *repository) LockUnsettled(ctx context.Context, affiliateID uuid.UUID, window Window) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.unsettledQuery(ctx, affiliateID, window).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Find(&entries).Error
	return entries, err
}

// List pages entries newest first.
func (r *repository) List(ctx context.Context, affiliateID uuid.UUID, filter EntryFilter) ([]models.LedgerEntry, error) {
	query := r.db.WithContext(ctx).Where("affiliate_id = ?", affiliateID)
	if len(filter.Types) > 0 {
		query = query.Where("type IN ?", filter.Types)
	}
	query = filter.Window.Apply(query, "occurred_at")
	query, err := pagination.Keyset(query, "occurred_at", pagination.NewestFirst, filter.Params)
	if err != nil {
		return nil, err
	}
	var entries []models.LedgerEntry
	err = query.Find(&entries).Error
	return entries, err
}

// AffiliatesWithUnsettled returns affiliates whose unsettled sum in any
// currency reaches minimumCents.
func (r *repository) AffiliatesWithUnsettled(ctx context.Context, minimumCents int64) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("type IN ?", settleableTypes()).
		Where(unconsumed).
		Group("affiliate_id, currency").
		Having("SUM(amount_cents) >= ?", minimumCents).
		Distinct().
		Pluck("affiliate_id", &ids).Error
	return ids, err
}

func settleableTypes() []enums.LedgerEntryType {
	return []enums.LedgerEntryType{enums.LedgerEntryEarned, enums.LedgerEntryAdjustment}
}
