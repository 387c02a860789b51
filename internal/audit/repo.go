package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

// Entry is one audit record. Metadata is stored as JSON.
type Entry struct {
	AffiliateID uuid.UUID
	Action      enums.AuditAction
	ActorID     *uuid.UUID
	Reason      string
	Metadata    map[string]any
}

// Recorder writes audit rows inside the caller's transaction.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.AffiliateID == uuid.Nil {
		return errors.New("audit entry requires affiliate id")
	}
	row := models.AffiliateAuditLog{
		AffiliateID: entry.AffiliateID,
		Action:      entry.Action,
		ActorID:     entry.ActorID,
	}
	if entry.Reason != "" {
		reason := entry.Reason
		row.Reason = &reason
	}
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
		row.Metadata = raw
	}
	return tx.WithContext(ctx).Create(&row).Error
}

// ListByAffiliate returns the newest records first.
func (r *Repository) ListByAffiliate(ctx context.Context, affiliateID uuid.UUID, limit int) ([]models.AffiliateAuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.AffiliateAuditLog
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
