package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the current wire version of Envelope.
const EnvelopeVersion = 1

// Source tags every envelope so downstream consumers can tell ledger events
// apart from other producers sharing a topic.
const Source = "partnerledger"

// Actor is the staff or partner user who caused the change. System jobs
// such as the cron worker leave it unset.
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
}

// Envelope is the JSON document stored in outbox_events.payload and
// published verbatim as the Pub/Sub message body.
type Envelope struct {
	Version     int             `json:"version"`
	Source      string          `json:"source"`
	EventID     string          `json:"event_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	AffiliateID *uuid.UUID      `json:"affiliate_id,omitempty"`
	Actor       *Actor          `json:"actor,omitempty"`
	Data        json.RawMessage `json:"data"`
}

// PartitionKey groups events of one affiliate. Empty when the event is not
// scoped to an affiliate.
func (e Envelope) PartitionKey() string {
	if e.AffiliateID == nil || *e.AffiliateID == uuid.Nil {
		return ""
	}
	return e.AffiliateID.String()
}
