package executions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
)

// Repository appends and counts step execution audit rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, execution *models.StepExecution) (*models.StepExecution, error)
	CountExecutedSince(ctx context.Context, action enums.ActionType, since time.Time) (int64, error)
	CountByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (int64, error)
	ListByEnrollment(ctx context.Context, enrollmentID uuid.UUID, limit int) ([]models.StepExecution, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an executions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, execution *models.StepExecution) (*models.StepExecution, error) {
	if execution.ID == uuid.Nil {
		execution.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(execution).Error; err != nil {
		return nil, err
	}
	return execution, nil
}

// CountExecutedSince counts successful sends of one action type in a trailing
// window. Failed attempts never consume rate budget.
func (r *repository) CountExecutedSince(ctx context.Context, action enums.ActionType, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StepExecution{}).
		Where("action_type = ?", action).
		Where("status = ?", enums.ExecutionStatusExecuted).
		Where("executed_at >= ?", since).
		Count(&count).Error
	return count, err
}

func (r *repository) CountByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StepExecution{}).
		Where("enrollment_id = ?", enrollmentID).
		Count(&count).Error
	return count, err
}

func (r *repository) ListByEnrollment(ctx context.Context, enrollmentID uuid.UUID, limit int) ([]models.StepExecution, error) {
	var rows []models.StepExecution
	query := r.db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("executed_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}
