package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/partnerledger-backend/pkg/config"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox/payloads"
)

func ledgerRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{LedgerTopic: " ledger-topic "})
	require.NoError(t, err)
	return reg
}

func envelopeOf(t *testing.T, version int, data string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(outbox.Envelope{
		Version:    version,
		Source:     outbox.Source,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(data),
	})
	require.NoError(t, err)
	return raw
}

func TestResolveDecodesPayoutPayload(t *testing.T) {
	payoutID, affiliateID := uuid.New(), uuid.New()
	data, err := json.Marshal(payloads.PayoutEvent{
		PayoutID:        payoutID,
		AffiliateID:     affiliateID,
		Status:          enums.PayoutStatusOwed,
		NetPayableCents: 6000,
		Currency:        "USD",
		EntryCount:      3,
	})
	require.NoError(t, err)

	resolved, err := ledgerRegistry(t).Resolve(models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPayoutGenerated,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payoutID,
		Payload:       envelopeOf(t, outbox.EnvelopeVersion, string(data)),
	})
	require.NoError(t, err)

	assert.Equal(t, "ledger-topic", resolved.Descriptor.Topic)
	assert.Equal(t, outbox.Source, resolved.Envelope.Source)
	payload, ok := resolved.Payload.(*payloads.PayoutEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, payoutID, payload.PayoutID)
	assert.Equal(t, affiliateID, payload.AffiliateID)
	assert.EqualValues(t, 6000, payload.NetPayableCents)
}

func TestNewEventRegistryCoversEveryLedgerEvent(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{LedgerTopic: "  "})
	assert.Error(t, err)

	assert.ElementsMatch(t, []enums.OutboxEventType{
		enums.EventAffiliateStatusChanged,
		enums.EventAssignmentCreated,
		enums.EventAssignmentEnded,
		enums.EventEarningAccrued,
		enums.EventLedgerAdjusted,
		enums.EventPayoutGenerated,
		enums.EventPayoutApproved,
		enums.EventPayoutPaid,
		enums.EventPayoutVoided,
	}, ledgerRegistry(t).Types())
}

func TestResolveRejectsBrokenRowsWithoutRetry(t *testing.T) {
	reg := ledgerRegistry(t)
	entry := `{"ledger_entry_id":"00000000-0000-0000-0000-000000000000"}`

	row := func(mutate func(*models.OutboxEvent)) models.OutboxEvent {
		ev := models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventEarningAccrued,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   uuid.New(),
			Payload:       envelopeOf(t, outbox.EnvelopeVersion, entry),
		}
		mutate(&ev)
		return ev
	}

	cases := map[string]models.OutboxEvent{
		"unknown event":        row(func(ev *models.OutboxEvent) { ev.EventType = "order_created" }),
		"aggregate mismatch":   row(func(ev *models.OutboxEvent) { ev.AggregateType = enums.AggregatePayout }),
		"missing aggregate id": row(func(ev *models.OutboxEvent) { ev.AggregateID = uuid.Nil }),
		"null payload":         row(func(ev *models.OutboxEvent) { ev.Payload = envelopeOf(t, outbox.EnvelopeVersion, "null") }),
		"future version":       row(func(ev *models.OutboxEvent) { ev.Payload = envelopeOf(t, outbox.EnvelopeVersion+1, entry) }),
		"bad envelope":         row(func(ev *models.OutboxEvent) { ev.Payload = json.RawMessage(`{not json`) }),
		"payload shape":        row(func(ev *models.OutboxEvent) { ev.Payload = envelopeOf(t, outbox.EnvelopeVersion, `{"gross_cents":"ten"}`) }),
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			require.Error(t, err)
			assert.True(t, IsNonRetryable(err), "got %T", err)
		})
	}
}
