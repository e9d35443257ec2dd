package analytics

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// OutreachEventRow mirrors the outreach_events BigQuery schema. One row per
// published outbox event; columns that do not apply to an event type stay
// NULL.
type OutreachEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	AggregateType string             `bigquery:"aggregate_type"`
	AggregateID   string             `bigquery:"aggregate_id"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	EnrollmentID  *string            `bigquery:"enrollment_id"`
	LeadID        *string            `bigquery:"lead_id"`
	SequenceID    *string            `bigquery:"sequence_id"`
	StepID        *string            `bigquery:"step_id"`
	StepOrder     *int64             `bigquery:"step_order"`
	ActionType    *string            `bigquery:"action_type"`
	DraftID       *string            `bigquery:"draft_id"`
	StepsExecuted *int64             `bigquery:"steps_executed"`
	ErrorMessage  *string            `bigquery:"error_message"`
	ActorKind     *string            `bigquery:"actor_kind"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}
