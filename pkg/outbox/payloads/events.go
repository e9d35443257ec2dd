package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
)

// EnrollmentCreatedEvent signals a lead entering a sequence.
type EnrollmentCreatedEvent struct {
	EnrollmentID uuid.UUID  `json:"enrollment_id"`
	LeadID       uuid.UUID  `json:"lead_id"`
	SequenceID   uuid.UUID  `json:"sequence_id"`
	NextStepAt   *time.Time `json:"next_step_at,omitempty"`
}

// EnrollmentStatusEvent is shared by the pause and resume transitions.
type EnrollmentStatusEvent struct {
	EnrollmentID uuid.UUID              `json:"enrollment_id"`
	LeadID       uuid.UUID              `json:"lead_id"`
	SequenceID   uuid.UUID              `json:"sequence_id"`
	Status       enums.EnrollmentStatus `json:"status"`
	ChangedAt    time.Time              `json:"changed_at"`
}

// EnrollmentCompletedEvent is emitted once when an enrollment runs out of steps.
type EnrollmentCompletedEvent struct {
	EnrollmentID  uuid.UUID `json:"enrollment_id"`
	LeadID        uuid.UUID `json:"lead_id"`
	SequenceID    uuid.UUID `json:"sequence_id"`
	StepsExecuted int       `json:"steps_executed"`
	CompletedAt   time.Time `json:"completed_at"`
}

// StepExecutedEvent mirrors the audit row written for a successful dispatch.
type StepExecutedEvent struct {
	ExecutionID  uuid.UUID        `json:"execution_id"`
	EnrollmentID uuid.UUID        `json:"enrollment_id"`
	LeadID       uuid.UUID        `json:"lead_id"`
	StepID       uuid.UUID        `json:"step_id"`
	StepOrder    int              `json:"step_order"`
	ActionType   enums.ActionType `json:"action_type"`
	ExecutedAt   time.Time        `json:"executed_at"`
}

// StepFailedEvent mirrors the audit row written for a failed dispatch. The
// enrollment stays on the same step, so step_order repeats across retries.
type StepFailedEvent struct {
	ExecutionID  uuid.UUID        `json:"execution_id"`
	EnrollmentID uuid.UUID        `json:"enrollment_id"`
	LeadID       uuid.UUID        `json:"lead_id"`
	StepID       uuid.UUID        `json:"step_id"`
	StepOrder    int              `json:"step_order"`
	ActionType   enums.ActionType `json:"action_type"`
	Error        string           `json:"error"`
	FailedAt     time.Time        `json:"failed_at"`
}

// DraftSentEvent reports approved reply copy going out through a step.
type DraftSentEvent struct {
	DraftID      uuid.UUID `json:"draft_id"`
	LeadID       uuid.UUID `json:"lead_id"`
	EnrollmentID uuid.UUID `json:"enrollment_id"`
	SentAt       time.Time `json:"sent_at"`
}
