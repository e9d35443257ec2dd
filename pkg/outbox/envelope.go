package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actor kinds recorded on emitted events.
const (
	ActorSystem   = "system"
	ActorOperator = "operator"
)

// ActorRef identifies what produced the event. Engine-emitted events carry
// the system kind; pause/resume carry the reviewing operator.
type ActorRef struct {
	Kind       string     `json:"kind"`
	OperatorID *uuid.UUID `json:"operatorId,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
