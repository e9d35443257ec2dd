package analytics

import (
	"encoding/json"
	"time"

	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
	"github.com/leadcadencehq/leadcadence-backend/pkg/outbox"
)

// Envelope is the canonical outreach event consumed from Pub/Sub. The
// payload fields come from the stored outbox envelope; the routing fields
// come from message attributes stamped by the publisher.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Version       int                       `json:"version"`
	Actor         *outbox.ActorRef          `json:"actor,omitempty"`
	Payload       json.RawMessage           `json:"payload"`
}
