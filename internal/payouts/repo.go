package payouts

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

// Repository persists payouts and their consumed-entry markers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindOutstanding(ctx context.Context, affiliateID uuid.UUID) (*models.Payout, error)
	ListByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.Payout, error)
	ListByStatus(ctx context.Context, status enums.PayoutStatus, params pagination.Params) ([]models.Payout, error)
	Save(ctx context.Context, payout *models.Payout) error
	InsertEntries(ctx context.Context, payoutID uuid.UUID, ledgerEntryIDs []uuid.UUID) error
	ReleaseEntries(ctx context.Context, payoutID uuid.UUID, at time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds payout persistence to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	if payout == nil {
		return fmt.Errorf("payout is required")
	}
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// FindOutstanding returns the affiliate's owed or approved payout, if any.
func (r *repository) FindOutstanding(ctx context.Context, affiliateID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).
		Where("affiliate_id = ? AND status IN ?", affiliateID, enums.OutstandingPayoutStatuses).
		First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) ListByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&payouts).Error
	return payouts, err
}

// ListByStatus pages the review queue oldest first.
func (r *repository) ListByStatus(ctx context.Context, status enums.PayoutStatus, params pagination.Params) ([]models.Payout, error) {
	query := r.db.WithContext(ctx).Where("status = ?", status)
	query, err := pagination.Keyset(query, "created_at", pagination.OldestFirst, params)
	if err != nil {
		return nil, err
	}
	var payouts []models.Payout
	err = query.Find(&payouts).Error
	return payouts, err
}

func (r *repository) Save(ctx context.Context, payout *models.Payout) error {
	if payout == nil {
		return fmt.Errorf("payout is required")
	}
	return r.db.WithContext(ctx).Save(payout).Error
}

// InsertEntries marks ledger entries as consumed by payoutID.
func (r *repository) InsertEntries(ctx context.Context, payoutID uuid.UUID, ledgerEntryIDs []uuid.UUID) error {
	if len(ledgerEntryIDs) == 0 {
		return nil
	}
	rows := make([]models.PayoutEntry, 0, len(ledgerEntryIDs))
	for _, id := range ledgerEntryIDs {
		rows = append(rows, models.PayoutEntry{PayoutID: payoutID, LedgerEntryID: id})
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, 500).Error
}

// ReleaseEntries returns a voided payout's entries to the unsettled set.
func (r *repository) ReleaseEntries(ctx context.Context, payoutID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PayoutEntry{}).
		Where("payout_id = ? AND released_at IS NULL", payoutID).
		Update("released_at", at)
	return res.RowsAffected, res.Error
}
