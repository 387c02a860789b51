package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

// AffiliateAuditLog is an append-only trail of account and money actions.
type AffiliateAuditLog struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AffiliateID uuid.UUID         `gorm:"column:affiliate_id;type:uuid;not null"`
	Action      enums.AuditAction `gorm:"column:action;not null"`
	ActorID     *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	Reason      *string           `gorm:"column:reason"`
	Metadata    json.RawMessage   `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (AffiliateAuditLog) TableName() string { return "affiliate_audit_logs" }

func (a *AffiliateAuditLog) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
