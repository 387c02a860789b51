package assignments

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

// Repository persists commission assignments and the revenue sources they bind.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, assignment *models.CommissionAssignment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionAssignment, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CommissionAssignment, error)
	FindOpenBySource(ctx context.Context, sourceType enums.RevenueSourceType, sourceID uuid.UUID) (*models.CommissionAssignment, error)
	FindEffective(ctx context.Context, sourceType enums.RevenueSourceType, sourceID uuid.UUID, at time.Time) (*models.CommissionAssignment, error)
	ListByAffiliate(ctx context.Context, affiliateID uuid.UUID, includeEnded bool) ([]models.CommissionAssignment, error)
	Close(ctx context.Context, id uuid.UUID, effectiveTo time.Time, reason string) error

	CreateListing(ctx context.Context, listing *models.Listing) error
	FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	FindTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	SetTenantReseller(ctx context.Context, tenantID, resellerID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds assignment persistence to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, assignment *models.CommissionAssignment) error {
	if assignment == nil {
		return fmt.Errorf("assignment is required")
	}
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionAssignment, error) {
	var assignment models.CommissionAssignment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&assignment).Error; err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CommissionAssignment, error) {
	var assignment models.CommissionAssignment
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&assignment).Error; err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindOpenBySource returns the assignment with no end date, if any.
func (r *repository) FindOpenBySource(ctx context.Context, sourceType enums.RevenueSourceType, sourceID uuid.UUID) (*models.CommissionAssignment, error) {
	var assignment models.CommissionAssignment
	if err := r.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ? AND effective_to IS NULL", sourceType, sourceID).
		First(&assignment).Error; err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindEffective returns the assignment whose [effective_from, effective_to)
// window contains at.
func (r *repository) FindEffective(ctx context.Context, sourceType enums.RevenueSourceType, sourceID uuid.UUID, at time.Time) (*models.CommissionAssignment, error) {
	var assignment models.CommissionAssignment
	if err := r.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Where("effective_from <= ?", at).
		Where("(effective_to IS NULL OR effective_to > ?)", at).
		Order("effective_from DESC").
		First(&assignment).Error; err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *repository) ListByAffiliate(ctx context.Context, affiliateID uuid.UUID, includeEnded bool) ([]models.CommissionAssignment, error) {
	query := r.db.WithContext(ctx).Where("affiliate_id = ?", affiliateID)
	if !includeEnded {
		query = query.Where("effective_to IS NULL")
	}
	var rows []models.CommissionAssignment
	err := query.Order("effective_from DESC").Find(&rows).Error
	return rows, err
}

func (r *repository) Close(ctx context.Context, id uuid.UUID, effectiveTo time.Time, reason string) error {
	updates := map[string]any{"effective_to": effectiveTo}
	if reason != "" {
		updates["ended_reason"] = reason
	}
	res := r.db.WithContext(ctx).
		Model(&models.CommissionAssignment{}).
		Where("id = ? AND effective_to IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) CreateListing(ctx context.Context, listing *models.Listing) error {
	if listing == nil {
		return fmt.Errorf("listing is required")
	}
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *repository) FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) FindTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) SetTenantReseller(ctx context.Context, tenantID, resellerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Update("reseller_id", resellerID).Error
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
