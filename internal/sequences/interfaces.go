package sequences

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
)

// Repository persists sequences and their ordered steps.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sequence *models.Sequence) (*models.Sequence, error)
	CreateSteps(ctx context.Context, steps []models.SequenceStep) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Sequence, error)
	FindByProjectAndName(ctx context.Context, projectID uuid.UUID, name string) (*models.Sequence, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Sequence, error)
	StepsForSequence(ctx context.Context, sequenceID uuid.UUID) ([]models.SequenceStep, error)
	StepAtOrder(ctx context.Context, sequenceID uuid.UUID, order int) (*models.SequenceStep, error)
}

// Service exposes sequence authoring and the default playbook seeding.
type Service interface {
	CreateSequence(ctx context.Context, input CreateSequenceInput) (*SequenceDetail, error)
	GetSequence(ctx context.Context, id uuid.UUID) (*SequenceDetail, error)
	ListSequences(ctx context.Context, projectID uuid.UUID) ([]models.Sequence, error)
	CreateDefaultSequences(ctx context.Context, projectID uuid.UUID) ([]models.Sequence, error)
}

// SequenceDetail bundles a sequence with its steps in execution order.
type SequenceDetail struct {
	Sequence models.Sequence
	Steps    []models.SequenceStep
}
