package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
)

// Enrollment binds one lead to one sequence and tracks progress through it.
// current_step_order is the last completed step; 0 means nothing ran yet.
type Enrollment struct {
	ID               uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	LeadID           uuid.UUID              `gorm:"column:lead_id;type:uuid;not null"`
	SequenceID       uuid.UUID              `gorm:"column:sequence_id;type:uuid;not null"`
	ProjectID        uuid.UUID              `gorm:"column:project_id;type:uuid;not null"`
	Status           enums.EnrollmentStatus `gorm:"column:status;type:enrollment_status;not null;default:'active'"`
	CurrentStepOrder int                    `gorm:"column:current_step_order;not null;default:0"`
	NextStepAt       *time.Time             `gorm:"column:next_step_at;type:timestamptz"`
	EnrolledAt       time.Time              `gorm:"column:enrolled_at;autoCreateTime"`
	CompletedAt      *time.Time             `gorm:"column:completed_at;type:timestamptz"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
