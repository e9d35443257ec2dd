package sequences

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a sequences repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sequence *models.Sequence) (*models.Sequence, error) {
	if sequence.ID == uuid.Nil {
		sequence.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(sequence).Error; err != nil {
		return nil, err
	}
	return sequence, nil
}

func (r *repository) CreateSteps(ctx context.Context, steps []models.SequenceStep) error {
	if len(steps) == 0 {
		return nil
	}
	for i := range steps {
		if steps[i].ID == uuid.Nil {
			steps[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&steps).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Sequence, error) {
	var sequence models.Sequence
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&sequence).Error
	if err != nil {
		return nil, err
	}
	return &sequence, nil
}

func (r *repository) FindByProjectAndName(ctx context.Context, projectID uuid.UUID, name string) (*models.Sequence, error) {
	var sequence models.Sequence
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Where("name = ?", name).
		First(&sequence).Error
	if err != nil {
		return nil, err
	}
	return &sequence, nil
}

func (r *repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Sequence, error) {
	var sequences []models.Sequence
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&sequences).Error
	return sequences, err
}

func (r *repository) StepsForSequence(ctx context.Context, sequenceID uuid.UUID) ([]models.SequenceStep, error) {
	var steps []models.SequenceStep
	err := r.db.WithContext(ctx).
		Where("sequence_id = ?", sequenceID).
		Order("step_order ASC").
		Find(&steps).Error
	return steps, err
}

// StepAtOrder returns the step at the given order, or nil when the order is
// past the end of the sequence. Falling off the end is how enrollments learn
// they are done, so absence is not an error here.
func (r *repository) StepAtOrder(ctx context.Context, sequenceID uuid.UUID, order int) (*models.SequenceStep, error) {
	var step models.SequenceStep
	err := r.db.WithContext(ctx).
		Where("sequence_id = ?", sequenceID).
		Where("step_order = ?", order).
		First(&step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &step, nil
}
