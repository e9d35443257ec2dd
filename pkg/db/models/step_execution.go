package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
)

// StepExecution is one append-only audit row per attempted step. Rows are
// never updated or deleted; the action type is denormalized so the rate gate
// can count without joining sequence_steps.
type StepExecution struct {
	ID           uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	EnrollmentID uuid.UUID             `gorm:"column:enrollment_id;type:uuid;not null"`
	StepID       uuid.UUID             `gorm:"column:step_id;type:uuid;not null"`
	ActionType   enums.ActionType      `gorm:"column:action_type;type:action_type;not null"`
	Status       enums.ExecutionStatus `gorm:"column:status;type:execution_status;not null"`
	Result       json.RawMessage       `gorm:"column:result;type:jsonb"`
	ExecutedAt   time.Time             `gorm:"column:executed_at;autoCreateTime"`
}
