package sequences

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/pkg/db"
	dbtypes "github.com/leadcadencehq/leadcadence-backend/pkg/db/types"
	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
	pkgerrors "github.com/leadcadencehq/leadcadence-backend/pkg/errors"

	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	db   txRunner
	repo Repository
}

// CreateSequenceInput holds a new playbook and its steps.
type CreateSequenceInput struct {
	ProjectID   uuid.UUID   `json:"project_id" validate:"required"`
	Name        string      `json:"name" validate:"required,max=120"`
	Description *string     `json:"description" validate:"omitempty,max=500"`
	Steps       []StepInput `json:"steps" validate:"required,min=1,dive"`
}

// StepInput is one action slot in a new sequence.
type StepInput struct {
	StepOrder        int              `json:"step_order" validate:"required,min=1"`
	ActionType       enums.ActionType `json:"action_type" validate:"required"`
	DelayHours       float64          `json:"delay_hours" validate:"min=0"`
	RequiresApproval bool             `json:"requires_approval"`
	DMText           *string          `json:"dm_text" validate:"omitempty,max=1000"`
}

// NewService builds a sequences service backed by the repository.
func NewService(database txRunner, repo Repository) (Service, error) {
	if database == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("sequences repository required")
	}
	return &service{db: database, repo: repo}, nil
}

func (s *service) CreateSequence(ctx context.Context, input CreateSequenceInput) (*SequenceDetail, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validate.Struct(input); err != nil {
		return nil, formatValidationErrors(err)
	}
	if err := validateSteps(input.Steps); err != nil {
		return nil, err
	}

	sequence := &models.Sequence{
		ProjectID:   input.ProjectID,
		Name:        input.Name,
		Description: input.Description,
		Active:      true,
	}
	var steps []models.SequenceStep
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		created, err := repo.Create(ctx, sequence)
		if err != nil {
			return err
		}
		steps = buildSteps(created.ID, input.Steps)
		return repo.CreateSteps(ctx, steps)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "sequence name already used in project")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create sequence")
	}
	return &SequenceDetail{Sequence: *sequence, Steps: steps}, nil
}

func (s *service) GetSequence(ctx context.Context, id uuid.UUID) (*SequenceDetail, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sequence identity missing")
	}
	sequence, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sequence not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup sequence")
	}
	steps, err := s.repo.StepsForSequence(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sequence steps")
	}
	return &SequenceDetail{Sequence: *sequence, Steps: steps}, nil
}

func (s *service) ListSequences(ctx context.Context, projectID uuid.UUID) ([]models.Sequence, error) {
	if projectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project identity missing")
	}
	sequences, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sequences")
	}
	return sequences, nil
}

// CreateDefaultSequences seeds the built-in playbooks for a project. Seeding
// is idempotent: templates that already exist by name are returned as-is.
func (s *service) CreateDefaultSequences(ctx context.Context, projectID uuid.UUID) ([]models.Sequence, error) {
	if projectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project identity missing")
	}

	var seeded []models.Sequence
	for _, template := range defaultTemplates {
		sequence, err := s.seedTemplate(ctx, projectID, template)
		if err != nil {
			return nil, err
		}
		seeded = append(seeded, *sequence)
	}
	return seeded, nil
}

func (s *service) seedTemplate(ctx context.Context, projectID uuid.UUID, template sequenceTemplate) (*models.Sequence, error) {
	existing, err := s.repo.FindByProjectAndName(ctx, projectID, template.name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup default sequence")
	}

	detail, err := s.CreateSequence(ctx, template.input(projectID))
	if err != nil {
		// A concurrent seeder can win the insert race; the name lookup
		// then resolves to its row.
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeConflict {
			existing, lookupErr := s.repo.FindByProjectAndName(ctx, projectID, template.name)
			if lookupErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, lookupErr, "lookup default sequence")
			}
			return existing, nil
		}
		return nil, err
	}
	return &detail.Sequence, nil
}

func validateSteps(steps []StepInput) error {
	ordered := make([]StepInput, len(steps))
	copy(ordered, steps)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].StepOrder < ordered[j].StepOrder })

	for i, step := range ordered {
		if step.StepOrder != i+1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "step orders must be contiguous from 1").
				WithDetails(map[string]any{"step_order": step.StepOrder, "expected": i + 1})
		}
		if !step.ActionType.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, "unknown action type").
				WithDetails(map[string]any{"action_type": string(step.ActionType)})
		}
		if step.DMText != nil && step.ActionType != enums.ActionTypeDM {
			return pkgerrors.New(pkgerrors.CodeValidation, "dm_text is only valid on dm steps").
				WithDetails(map[string]any{"step_order": step.StepOrder})
		}
	}
	return nil
}

func buildSteps(sequenceID uuid.UUID, inputs []StepInput) []models.SequenceStep {
	ordered := make([]StepInput, len(inputs))
	copy(ordered, inputs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].StepOrder < ordered[j].StepOrder })

	steps := make([]models.SequenceStep, 0, len(ordered))
	for _, input := range ordered {
		step := models.SequenceStep{
			SequenceID:       sequenceID,
			StepOrder:        input.StepOrder,
			ActionType:       input.ActionType,
			DelayHours:       input.DelayHours,
			RequiresApproval: input.RequiresApproval,
		}
		if input.DMText != nil {
			step.Config = &dbtypes.StepConfig{DMText: input.DMText}
		}
		steps = append(steps, step)
	}
	return steps
}

func formatValidationErrors(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	}
	return "is invalid"
}
