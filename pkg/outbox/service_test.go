package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/internal/testdb"
	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox"
	"github.com/angelmondragon/partnerledger-backend/pkg/outbox/payloads"
)

func TestEmitStoresEnvelopeWithPartitionKey(t *testing.T) {
	conn := testdb.New(t).DB()
	svc := outbox.NewService(outbox.NewRepository(conn), nil)

	payoutID, affiliateID, staff := uuid.New(), uuid.New(), uuid.New()
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutPaid,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payoutID,
			AffiliateID:   affiliateID,
			Actor:         outbox.ActorFor(&staff),
			OccurredAt:    occurred,
			Data:          payloads.PayoutEvent{PayoutID: payoutID, AffiliateID: affiliateID, NetPayableCents: 4200, Currency: "USD"},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, payoutID, row.AggregateID)
	assert.Nil(t, row.PublishedAt)

	var env outbox.Envelope
	require.NoError(t, json.Unmarshal(row.Payload, &env))
	assert.Equal(t, outbox.EnvelopeVersion, env.Version)
	assert.Equal(t, outbox.Source, env.Source)
	assert.Equal(t, affiliateID.String(), env.PartitionKey())
	assert.True(t, env.OccurredAt.Equal(occurred))
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
	require.NotNil(t, env.Actor)
	assert.Equal(t, staff, env.Actor.UserID)

	id, err := uuid.Parse(env.EventID)
	require.NoError(t, err)
	assert.EqualValues(t, 7, id.Version())

	var data payloads.PayoutEvent
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.EqualValues(t, 4200, data.NetPayableCents)
}

func TestEmitRollsBackWithCallerTransaction(t *testing.T) {
	conn := testdb.New(t).DB()
	svc := outbox.NewService(outbox.NewRepository(conn), nil)
	boom := errors.New("ledger write failed")

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventLedgerAdjusted,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   uuid.New(),
			Data:          payloads.LedgerAdjustedEvent{AmountCents: -500, Currency: "USD"},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 0, testdb.CountRows(t, conn, "outbox_events"))
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	conn := testdb.New(t).DB()
	svc := outbox.NewService(outbox.NewRepository(conn), nil)
	ctx := context.Background()

	valid := outbox.DomainEvent{
		EventType:     enums.EventAffiliateStatusChanged,
		AggregateType: enums.AggregateAffiliate,
		AggregateID:   uuid.New(),
		Data:          map[string]string{},
	}
	assert.Error(t, svc.Emit(ctx, nil, valid))

	badType := valid
	badType.EventType = "order_created"
	badAggregate := valid
	badAggregate.AggregateType = "vendor"
	noID := valid
	noID.AggregateID = uuid.Nil
	for name, event := range map[string]outbox.DomainEvent{
		"event type":     badType,
		"aggregate type": badAggregate,
		"aggregate id":   noID,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, svc.Emit(ctx, conn, event))
		})
	}
	assert.EqualValues(t, 0, testdb.CountRows(t, conn, "outbox_events"))
}

func TestActorForSystemChanges(t *testing.T) {
	assert.Nil(t, outbox.ActorFor(nil))
	assert.Nil(t, outbox.ActorFor(&uuid.Nil))
}
