package enrollments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/internal/leads"
	"github.com/leadcadencehq/leadcadence-backend/internal/sequences"
	"github.com/leadcadencehq/leadcadence-backend/pkg/db"
	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
	pkgerrors "github.com/leadcadencehq/leadcadence-backend/pkg/errors"
	"github.com/leadcadencehq/leadcadence-backend/pkg/logger"
	"github.com/leadcadencehq/leadcadence-backend/pkg/outbox"
	"github.com/leadcadencehq/leadcadence-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams configure the enrollments service.
type ServiceParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Repo      Repository
	Leads     leads.Repository
	Sequences sequences.Repository
	Outbox    eventEmitter
	Now       func() time.Time
}

type service struct {
	logg      *logger.Logger
	db        txRunner
	repo      Repository
	leads     leads.Repository
	sequences sequences.Repository
	outbox    eventEmitter
	now       func() time.Time
}

// NewService builds the enrollments service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("enrollments repository required")
	}
	if params.Leads == nil {
		return nil, fmt.Errorf("leads repository required")
	}
	if params.Sequences == nil {
		return nil, fmt.Errorf("sequences repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repo,
		leads:     params.Leads,
		sequences: params.Sequences,
		outbox:    params.Outbox,
		now:       now,
	}, nil
}

// Enroll places a lead into a sequence. The first step comes due immediately;
// the tick loop picks it up on its next pass.
func (s *service) Enroll(ctx context.Context, leadID, sequenceID, projectID uuid.UUID) (*models.Enrollment, error) {
	if leadID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lead identity missing")
	}
	if sequenceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sequence identity missing")
	}
	if projectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project identity missing")
	}

	var enrollment *models.Enrollment
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		lead, err := s.leads.WithTx(tx).FindByID(ctx, leadID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "lead not found")
			}
			return err
		}
		seqRepo := s.sequences.WithTx(tx)
		sequence, err := seqRepo.FindByID(ctx, sequenceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "sequence not found")
			}
			return err
		}
		if !sequence.Active {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "sequence is inactive")
		}
		if lead.ProjectID != projectID || sequence.ProjectID != projectID {
			return pkgerrors.New(pkgerrors.CodeValidation, "lead and sequence must belong to the project")
		}
		steps, err := seqRepo.StepsForSequence(ctx, sequenceID)
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "sequence has no steps")
		}

		now := s.now().UTC()
		enrollment = &models.Enrollment{
			LeadID:     leadID,
			SequenceID: sequenceID,
			ProjectID:  projectID,
			Status:     enums.EnrollmentStatusActive,
			NextStepAt: &now,
			EnrolledAt: now,
		}
		if _, err := s.repo.WithTx(tx).Create(ctx, enrollment); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEnrollmentCreated,
			AggregateType: enums.AggregateEnrollment,
			AggregateID:   enrollment.ID,
			Actor:         &outbox.ActorRef{Kind: outbox.ActorSystem},
			Version:       1,
			OccurredAt:    now,
			Data: payloads.EnrollmentCreatedEvent{
				EnrollmentID: enrollment.ID,
				LeadID:       leadID,
				SequenceID:   sequenceID,
				NextStepAt:   enrollment.NextStepAt,
			},
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "lead already enrolled in this sequence")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enroll lead")
	}

	logCtx := s.logg.WithEnrollmentID(ctx, enrollment.ID.String())
	logCtx = s.logg.WithLeadID(logCtx, leadID.String())
	logCtx = s.logg.WithSequenceID(logCtx, sequenceID.String())
	s.logg.Info(logCtx, "lead enrolled in sequence")
	return enrollment, nil
}

// Pause takes an enrollment off the schedule without losing its position.
func (s *service) Pause(ctx context.Context, enrollmentID uuid.UUID, operatorID *uuid.UUID) (*models.Enrollment, error) {
	return s.transition(ctx, enrollmentID, operatorID, enums.EnrollmentStatusPaused)
}

// Resume puts a paused enrollment back on the schedule. Its next step comes
// due immediately.
func (s *service) Resume(ctx context.Context, enrollmentID uuid.UUID, operatorID *uuid.UUID) (*models.Enrollment, error) {
	return s.transition(ctx, enrollmentID, operatorID, enums.EnrollmentStatusActive)
}

func (s *service) Get(ctx context.Context, enrollmentID uuid.UUID) (*models.Enrollment, error) {
	if enrollmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment identity missing")
	}
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "enrollment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup enrollment")
	}
	return enrollment, nil
}

func (s *service) transition(ctx context.Context, enrollmentID uuid.UUID, operatorID *uuid.UUID, target enums.EnrollmentStatus) (*models.Enrollment, error) {
	if enrollmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment identity missing")
	}

	var enrollment *models.Enrollment
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, enrollmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "enrollment not found")
			}
			return err
		}
		if current.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "enrollment already completed")
		}
		if current.Status == target {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("enrollment already %s", target))
		}

		now := s.now().UTC()
		eventType := enums.EventEnrollmentPaused
		switch target {
		case enums.EnrollmentStatusPaused:
			if err := repo.UpdateStatus(ctx, enrollmentID, target); err != nil {
				return err
			}
		case enums.EnrollmentStatusActive:
			eventType = enums.EventEnrollmentResumed
			if err := repo.Reactivate(ctx, enrollmentID, now); err != nil {
				return err
			}
			current.NextStepAt = &now
		default:
			return pkgerrors.New(pkgerrors.CodeValidation, "unsupported status transition")
		}
		current.Status = target
		enrollment = current

		actor := &outbox.ActorRef{Kind: outbox.ActorSystem}
		if operatorID != nil {
			actor = &outbox.ActorRef{Kind: outbox.ActorOperator, OperatorID: operatorID}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateEnrollment,
			AggregateID:   enrollmentID,
			Actor:         actor,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.EnrollmentStatusEvent{
				EnrollmentID: enrollmentID,
				LeadID:       current.LeadID,
				SequenceID:   current.SequenceID,
				Status:       target,
				ChangedAt:    now,
			},
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update enrollment status")
	}
	return enrollment, nil
}
