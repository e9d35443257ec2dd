package enrollments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an enrollments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error) {
	if enrollment.ID == uuid.Nil {
		enrollment.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(enrollment).Error; err != nil {
		return nil, err
	}
	return enrollment, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&enrollment).Error
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDue returns active enrollments whose next step came due, oldest first.
func (r *repository) FindDue(ctx context.Context, now time.Time, limit int) ([]models.Enrollment, error) {
	var due []models.Enrollment
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.EnrollmentStatusActive).
		Where("next_step_at IS NOT NULL").
		Where("next_step_at <= ?", now).
		Order("next_step_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&due).Error
	return due, err
}

// Advance records a completed step and schedules the next one.
func (r *repository) Advance(ctx context.Context, id uuid.UUID, completedOrder int, nextStepAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"current_step_order": completedOrder,
			"next_step_at":       nextStepAt,
		}).Error
}

// Complete marks the enrollment terminal and clears its schedule.
func (r *repository) Complete(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       enums.EnrollmentStatusCompleted,
			"completed_at": completedAt,
			"next_step_at": nil,
		}).Error
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.EnrollmentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// Reactivate returns a paused enrollment to the schedule.
func (r *repository) Reactivate(ctx context.Context, id uuid.UUID, nextStepAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       enums.EnrollmentStatusActive,
			"next_step_at": nextStepAt,
		}).Error
}
