package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

// Split is the write-once commission stamp on an invoice.
type Split struct {
	AffiliateID          uuid.UUID
	AssignmentID         uuid.UUID
	CommissionCents      int64
	PlatformRevenueCents int64
	At                   time.Time
}

// Repository persists the processor invoice mirror.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Invoice, error)
	Upsert(ctx context.Context, invoice *models.Invoice) error
	StampSplit(ctx context.Context, id uuid.UUID, split Split) (bool, error)
	ListPaidWithoutSplit(ctx context.Context, paidSince time.Time, after *PaidRef, limit int) ([]PaidRef, error)
}

// PaidRef locates a paid invoice in backfill order and doubles as the
// keyset cursor for the next page.
type PaidRef struct {
	ID     uuid.UUID
	PaidAt time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the invoice mirror to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// Upsert inserts by external id or refreshes the lifecycle columns of an
// existing row. Amount, tenant and listing are fixed at first sight and the
// split stamp is never touched. A paid row keeps its status and paid_at so
// late events cannot unpay it.
func (r *repository) Upsert(ctx context.Context, invoice *models.Invoice) error {
	if invoice == nil {
		return fmt.Errorf("invoice is required")
	}
	paid := enums.InvoiceStatusPaid
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"status":     gorm.Expr("CASE WHEN invoices.status = ? THEN invoices.status ELSE excluded.status END", paid),
				"paid_at":    gorm.Expr("CASE WHEN invoices.status = ? THEN invoices.paid_at ELSE excluded.paid_at END", paid),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).
		Create(invoice).Error; err != nil {
		return err
	}
	stored, err := r.FindByExternalID(ctx, invoice.ExternalID)
	if err != nil {
		return err
	}
	*invoice = *stored
	return nil
}

// StampSplit records the split once. It reports false when the invoice was
// already stamped.
func (r *repository) StampSplit(ctx context.Context, id uuid.UUID, split Split) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND split_at IS NULL", id).
		Updates(map[string]any{
			"commission_affiliate_id":  split.AffiliateID,
			"commission_assignment_id": split.AssignmentID,
			"commission_cents":         split.CommissionCents,
			"platform_revenue_cents":   split.PlatformRevenueCents,
			"split_at":                 split.At,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListPaidWithoutSplit returns one page of paid invoices that never got a
// split stamp, ordered by (paid_at, id). Pass the last ref of a page as after
// to read the next one.
func (r *repository) ListPaidWithoutSplit(ctx context.Context, paidSince time.Time, after *PaidRef, limit int) ([]PaidRef, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Select("id", "paid_at").
		Where("status = ? AND split_at IS NULL AND paid_at >= ?", enums.InvoiceStatusPaid, paidSince)
	if after != nil {
		query = query.Where("(paid_at > ?) OR (paid_at = ? AND id > ?)", after.PaidAt, after.PaidAt, after.ID)
	}
	var refs []PaidRef
	err := query.
		Order("paid_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&refs).Error
	return refs, err
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
