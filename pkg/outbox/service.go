package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

// DomainEvent is a ledger change queued for publication. AffiliateID is the
// affiliate whose balance or account the change touches.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	AffiliateID   uuid.UUID
	Actor         *Actor
	OccurredAt    time.Time
	Data          any
}

// Emitter queues domain events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit writes the event row on tx, so it commits or rolls back together with
// the ledger change that produced it.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return fmt.Errorf("emit %s: transaction required", event.EventType)
	}
	envelope, err := s.envelope(event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", event.EventType, err)
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(payload),
	}); err != nil {
		return err
	}

	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"affiliate_id":   envelope.PartitionKey(),
	}), "outbox event queued")
	return nil
}

func (s *Service) envelope(event DomainEvent) (Envelope, error) {
	if !event.EventType.IsValid() {
		return Envelope{}, fmt.Errorf("invalid outbox event type %q", event.EventType)
	}
	if !event.AggregateType.IsValid() {
		return Envelope{}, fmt.Errorf("invalid aggregate type %q for %s", event.AggregateType, event.EventType)
	}
	if event.AggregateID == uuid.Nil {
		return Envelope{}, fmt.Errorf("emit %s: aggregate id required", event.EventType)
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	// v7 ids sort by creation time, which keeps consumer dedupe tables compact.
	id, err := uuid.NewV7()
	if err != nil {
		return Envelope{}, fmt.Errorf("event id: %w", err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}
	env := Envelope{
		Version:    EnvelopeVersion,
		Source:     Source,
		EventID:    id.String(),
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	if event.AffiliateID != uuid.Nil {
		affiliateID := event.AffiliateID
		env.AffiliateID = &affiliateID
	}
	return env, nil
}

// ActorFor returns nil for system-initiated changes.
func ActorFor(userID *uuid.UUID) *Actor {
	if userID == nil || *userID == uuid.Nil {
		return nil
	}
	return &Actor{UserID: *userID}
}
