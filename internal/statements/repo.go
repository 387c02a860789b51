package statements

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/internal/ledger"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

// CurrencyTotals is one currency's row of a statement.
type CurrencyTotals struct {
	Currency         string `gorm:"column:currency" json:"currency"`
	GrossCents       int64  `gorm:"column:gross_cents" json:"gross_cents"`
	CommissionCents  int64  `gorm:"column:commission_cents" json:"commission_cents"`
	NetCents         int64  `gorm:"column:net_cents" json:"net_cents"`
	AdjustmentsCents int64  `gorm:"column:adjustments_cents" json:"adjustments_cents"`
	PayoutsPaidCents int64  `gorm:"column:payouts_paid_cents" json:"payouts_paid_cents"`
	EntryCount       int64  `gorm:"column:entry_count" json:"entry_count"`
	InvoiceCount     int64  `gorm:"column:invoice_count" json:"invoice_count"`
}

// Repository runs read-only aggregates over the ledger.
type Repository interface {
	Totals(ctx context.Context, affiliateID uuid.UUID, window ledger.Window) ([]CurrencyTotals, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds statement queries to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Totals(ctx context.Context, affiliateID uuid.UUID, window ledger.Window) ([]CurrencyTotals, error) {
	query := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select(`currency,
			COALESCE(SUM(CASE WHEN type = ? THEN gross_cents ELSE 0 END), 0) AS gross_cents,
			COALESCE(SUM(CASE WHEN type = ? THEN commission_cents ELSE 0 END), 0) AS commission_cents,
			COALESCE(SUM(CASE WHEN type = ? THEN net_cents ELSE 0 END), 0) AS net_cents,
			COALESCE(SUM(CASE WHEN type = ? THEN amount_cents ELSE 0 END), 0) AS adjustments_cents,
			COALESCE(-SUM(CASE WHEN type = ? THEN amount_cents ELSE 0 END), 0) AS payouts_paid_cents,
			COUNT(*) AS entry_count,
			COUNT(DISTINCT invoice_id) AS invoice_count`,
			enums.LedgerEntryEarned,
			enums.LedgerEntryEarned,
			enums.LedgerEntryEarned,
			enums.LedgerEntryAdjustment,
			enums.LedgerEntryPayout).
		Where("affiliate_id = ?", affiliateID)

	var rows []CurrencyTotals
	err := window.Apply(query, "occurred_at").
		Group("currency").
		Order("currency").
		Scan(&rows).Error
	return rows, err
}
