package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// FetchUnpublishedForPublish locks a batch of pending rows so concurrent
// publishers skip each other's work.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var rows []models.OutboxEvent
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL").
		Where("attempt_count < ?", maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": time.Now().UTC(),
		}).Error
}

func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    err.Error(),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// MarkTerminalTx parks a row at the attempt ceiling so it is never fetched again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    err.Error(),
			"attempt_count": terminalAttempts,
		}).Error
}

// CountUnpublished reports rows still waiting for delivery. Rows parked at
// maxAttempts are excluded; they will never publish.
func (r *Repository) CountUnpublished(tx *gorm.DB, maxAttempts int) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	var count int64
	err := conn.Model(&models.OutboxEvent{}).
		Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
		Count(&count).Error
	return count, err
}

// PruneScope picks which settled rows a prune pass removes.
type PruneScope int

const (
	// PrunePublished removes rows published before the cutoff.
	PrunePublished PruneScope = iota
	// PruneParked removes rows created before the cutoff that reached
	// maxAttempts without ever publishing.
	PruneParked
)

func (s PruneScope) String() string {
	if s == PruneParked {
		return "parked"
	}
	return "published"
}

// Prune deletes at most limit rows of scope. Callers loop until fewer than
// limit rows come back so no single statement holds locks for long.
func (r *Repository) Prune(ctx context.Context, tx *gorm.DB, scope PruneScope, cutoff time.Time, maxAttempts, limit int) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	conn = conn.WithContext(ctx)

	ids := conn.Model(&models.OutboxEvent{}).Select("id").Limit(limit)
	switch scope {
	case PrunePublished:
		ids = ids.Where("published_at IS NOT NULL AND published_at < ?", cutoff)
	case PruneParked:
		ids = ids.Where("published_at IS NULL AND attempt_count >= ? AND created_at < ?", maxAttempts, cutoff)
	default:
		return 0, fmt.Errorf("unknown prune scope %d", scope)
	}
	res := conn.Where("id IN (?)", ids).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}
