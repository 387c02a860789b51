// Package registry maps stored outbox rows onto their topic and typed payload.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/angelmondragon/partnerledger-backend/pkg/config"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.Envelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err, or anything it wraps, is a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

func rejectf(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry routes every ledger event to the configured ledger topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.LedgerTopic)
	if topic == "" {
		return nil, errors.New("ledger topic is required")
	}

	descriptors := []EventDescriptor{
		describe[payloads.AffiliateStatusChangedEvent](enums.EventAffiliateStatusChanged, enums.AggregateAffiliate),
		describe[payloads.AssignmentEvent](enums.EventAssignmentCreated, enums.AggregateAssignment),
		describe[payloads.AssignmentEvent](enums.EventAssignmentEnded, enums.AggregateAssignment),
		describe[payloads.EarningAccruedEvent](enums.EventEarningAccrued, enums.AggregateLedgerEntry),
		describe[payloads.LedgerAdjustedEvent](enums.EventLedgerAdjusted, enums.AggregateLedgerEntry),
		describe[payloads.PayoutEvent](enums.EventPayoutGenerated, enums.AggregatePayout),
		describe[payloads.PayoutEvent](enums.EventPayoutApproved, enums.AggregatePayout),
		describe[payloads.PayoutEvent](enums.EventPayoutPaid, enums.AggregatePayout),
		describe[payloads.PayoutEvent](enums.EventPayoutVoided, enums.AggregatePayout),
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		desc.Topic = topic
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Types lists the registered event types in lexical order.
func (r *EventRegistry) Types() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Resolve checks the row against its descriptor and decodes the envelope
// and typed payload. Every failure is non-retryable since the stored row
// never changes.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, rejectf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, rejectf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, rejectf("missing aggregate_id")
	}

	var env outbox.Envelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return nil, rejectf("decode envelope: %w", err)
	}
	if env.Version != outbox.EnvelopeVersion {
		return nil, rejectf("unsupported envelope version %d", env.Version)
	}
	if strings.TrimSpace(env.EventID) == "" {
		return nil, rejectf("envelope for %s has no event_id", event.ID)
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, rejectf("payload missing for %s", event.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, rejectf("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
