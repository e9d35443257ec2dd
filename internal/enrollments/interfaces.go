package enrollments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
)

// Repository persists enrollments and their scheduling state.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Enrollment, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]models.Enrollment, error)
	Advance(ctx context.Context, id uuid.UUID, completedOrder int, nextStepAt time.Time) error
	Complete(ctx context.Context, id uuid.UUID, completedAt time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.EnrollmentStatus) error
	Reactivate(ctx context.Context, id uuid.UUID, nextStepAt time.Time) error
}

// Service exposes enrollment lifecycle operations.
type Service interface {
	Enroll(ctx context.Context, leadID, sequenceID, projectID uuid.UUID) (*models.Enrollment, error)
	Pause(ctx context.Context, enrollmentID uuid.UUID, operatorID *uuid.UUID) (*models.Enrollment, error)
	Resume(ctx context.Context, enrollmentID uuid.UUID, operatorID *uuid.UUID) (*models.Enrollment, error)
	Get(ctx context.Context, enrollmentID uuid.UUID) (*models.Enrollment, error)
}
