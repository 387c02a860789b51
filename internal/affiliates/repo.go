package affiliates

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	"github.com/angelmondragon/partnerledger-backend/pkg/pagination"
)

// Repository persists affiliate accounts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.Affiliate) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
	FindByOwner(ctx context.Context, kind enums.AffiliateKind, ownerID uuid.UUID) (*models.Affiliate, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Affiliate, error)
	List(ctx context.Context, filter ListFilter) ([]models.Affiliate, error)
	ListEarning(ctx context.Context) ([]models.Affiliate, error)
	Save(ctx context.Context, account *models.Affiliate) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds affiliate persistence to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, account *models.Affiliate) error {
	if account == nil {
		return fmt.Errorf("affiliate is required")
	}
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Affiliate, error) {
	var account models.Affiliate
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByIDForUpdate row-locks the account. Callers must be inside a
// transaction bound through WithTx.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Affiliate, error) {
	var account models.Affiliate
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindByOwner(ctx context.Context, kind enums.AffiliateKind, ownerID uuid.UUID) (*models.Affiliate, error) {
	var account models.Affiliate
	if err := r.db.WithContext(ctx).
		Where("kind = ? AND owner_id = ?", kind, ownerID).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Affiliate, error) {
	var accounts []models.Affiliate
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// List pages accounts newest first using a created_at/id cursor.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Affiliate, error) {
	query := r.db.WithContext(ctx).Model(&models.Affiliate{})
	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	query, err := pagination.Keyset(query, "created_at", pagination.NewestFirst, filter.Params)
	if err != nil {
		return nil, err
	}
	var accounts []models.Affiliate
	err = query.Find(&accounts).Error
	return accounts, err
}

// ListEarning returns every account currently allowed to accrue.
func (r *repository) ListEarning(ctx context.Context) ([]models.Affiliate, error) {
	var accounts []models.Affiliate
	err := r.db.WithContext(ctx).
		Where("status IN ?", []enums.AffiliateStatus{enums.AffiliateStatusApproved, enums.AffiliateStatusActive}).
		Order("created_at ASC").
		Find(&accounts).Error
	return accounts, err
}

func (r *repository) Save(ctx context.Context, account *models.Affiliate) error {
	if account == nil {
		return fmt.Errorf("affiliate is required")
	}
	return r.db.WithContext(ctx).Save(account).Error
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
