package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateEnrollment OutboxAggregateType = "enrollment"
	AggregateSequence   OutboxAggregateType = "sequence"
	AggregateLead       OutboxAggregateType = "lead"
	AggregateDraft      OutboxAggregateType = "draft"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateEnrollment,
	AggregateSequence,
	AggregateLead,
	AggregateDraft,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventEnrollmentCreated   OutboxEventType = "enrollment_created"
	EventEnrollmentPaused    OutboxEventType = "enrollment_paused"
	EventEnrollmentResumed   OutboxEventType = "enrollment_resumed"
	EventEnrollmentCompleted OutboxEventType = "enrollment_completed"
	EventStepExecuted        OutboxEventType = "step_executed"
	EventStepFailed          OutboxEventType = "step_failed"
	EventDraftSent           OutboxEventType = "draft_sent"
)

var validOutboxEventTypes = []OutboxEventType{
	EventEnrollmentCreated,
	EventEnrollmentPaused,
	EventEnrollmentResumed,
	EventEnrollmentCompleted,
	EventStepExecuted,
	EventStepFailed,
	EventDraftSent,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason explains why an event landed in the dead letter queue.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
