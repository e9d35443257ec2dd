package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/internal/drafts"
	"github.com/leadcadencehq/leadcadence-backend/internal/enrollments"
	"github.com/leadcadencehq/leadcadence-backend/internal/executions"
	"github.com/leadcadencehq/leadcadence-backend/internal/leads"
	"github.com/leadcadencehq/leadcadence-backend/internal/rategate"
	"github.com/leadcadencehq/leadcadence-backend/internal/sequences"
	"github.com/leadcadencehq/leadcadence-backend/pkg/config"
	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
	"github.com/leadcadencehq/leadcadence-backend/pkg/logger"
	"github.com/leadcadencehq/leadcadence-backend/pkg/metrics"
	"github.com/leadcadencehq/leadcadence-backend/pkg/outbox"
	"github.com/leadcadencehq/leadcadence-backend/pkg/outbox/payloads"
)

const (
	defaultBatchSize        = 50
	defaultConnectorTimeout = 30 * time.Second

	// jitterFraction spreads scheduled steps by up to ±30% of the step
	// delay so send times do not form a mechanical pattern.
	jitterFraction = 0.3
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Params configure the step execution engine.
type Params struct {
	Logger      *logger.Logger
	DB          txRunner
	Enrollments enrollments.Repository
	Sequences   sequences.Repository
	Executions  executions.Repository
	Leads       leads.Repository
	Drafts      drafts.Repository
	Gate        *rategate.Gate
	Connector   Connector
	Outbox      eventEmitter
	Metrics     *metrics.EngineMetrics
	Config      config.EngineConfig
	Now         func() time.Time
	Rand        func() float64
}

// Engine advances due enrollments through their sequence steps. Every tick
// runs in a single transaction: either the whole batch of state changes and
// audit rows commits, or none of it does.
type Engine struct {
	logg             *logger.Logger
	db               txRunner
	enrollments      enrollments.Repository
	sequences        sequences.Repository
	executions       executions.Repository
	leads            leads.Repository
	drafts           drafts.Repository
	gate             *rategate.Gate
	connector        Connector
	outbox           eventEmitter
	metrics          *metrics.EngineMetrics
	handlers         map[enums.ActionType]handlerFunc
	batchSize        int
	connectorTimeout time.Duration
	now              func() time.Time
	rand             func() float64
}

// New builds the engine.
func New(params Params) (*Engine, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Enrollments == nil {
		return nil, fmt.Errorf("enrollments repository required")
	}
	if params.Sequences == nil {
		return nil, fmt.Errorf("sequences repository required")
	}
	if params.Executions == nil {
		return nil, fmt.Errorf("executions repository required")
	}
	if params.Leads == nil {
		return nil, fmt.Errorf("leads repository required")
	}
	if params.Drafts == nil {
		return nil, fmt.Errorf("drafts repository required")
	}
	if params.Gate == nil {
		return nil, fmt.Errorf("rate gate required")
	}
	if params.Connector == nil {
		return nil, fmt.Errorf("connector required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	batchSize := params.Config.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	connectorTimeout := params.Config.ConnectorTimeout
	if connectorTimeout <= 0 {
		connectorTimeout = defaultConnectorTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	random := params.Rand
	if random == nil {
		random = rand.Float64
	}
	engine := &Engine{
		logg:             params.Logger,
		db:               params.DB,
		enrollments:      params.Enrollments,
		sequences:        params.Sequences,
		executions:       params.Executions,
		leads:            params.Leads,
		drafts:           params.Drafts,
		gate:             params.Gate,
		connector:        params.Connector,
		outbox:           params.Outbox,
		metrics:          params.Metrics,
		batchSize:        batchSize,
		connectorTimeout: connectorTimeout,
		now:              now,
		rand:             random,
	}
	engine.handlers = engine.actionHandlers()
	return engine, nil
}

type txDeps struct {
	enrollments enrollments.Repository
	sequences   sequences.Repository
	executions  executions.Repository
	leads       leads.Repository
	drafts      drafts.Repository
	gate        *rategate.Gate
}

func (e *Engine) bind(tx *gorm.DB) txDeps {
	execRepo := e.executions.WithTx(tx)
	return txDeps{
		enrollments: e.enrollments.WithTx(tx),
		sequences:   e.sequences.WithTx(tx),
		executions:  execRepo,
		leads:       e.leads.WithTx(tx),
		drafts:      e.drafts.WithTx(tx),
		gate:        e.gate.WithCounter(execRepo),
	}
}

type tickStats struct {
	due       int
	advanced  int
	completed int
	failed    int
	skipped   int
}

// ExecuteDueSteps runs one tick: select due enrollments, execute their next
// step, and reschedule or complete them. It returns the number of
// enrollments that advanced.
func (e *Engine) ExecuteDueSteps(ctx context.Context) (int, error) {
	start := e.now()
	var stats tickStats
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		deps := e.bind(tx)
		due, err := deps.enrollments.FindDue(ctx, e.now().UTC(), e.batchSize)
		if err != nil {
			return fmt.Errorf("find due enrollments: %w", err)
		}
		stats.due = len(due)
		for i := range due {
			if err := e.processEnrollment(ctx, tx, deps, &due[i], &stats); err != nil {
				return err
			}
		}
		return nil
	})
	e.metrics.ObserveTick(e.now().Sub(start))
	if err != nil {
		e.metrics.IncTickFailure()
		return 0, fmt.Errorf("execute due steps: %w", err)
	}
	e.metrics.IncTickSuccess()

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"due":       stats.due,
		"advanced":  stats.advanced,
		"completed": stats.completed,
		"failed":    stats.failed,
		"skipped":   stats.skipped,
	})
	e.logg.Info(logCtx, "engine tick complete")
	return stats.advanced, nil
}

func (e *Engine) processEnrollment(ctx context.Context, tx *gorm.DB, deps txDeps, enrollment *models.Enrollment, stats *tickStats) error {
	logCtx := e.logg.WithEnrollmentID(ctx, enrollment.ID.String())
	logCtx = e.logg.WithLeadID(logCtx, enrollment.LeadID.String())
	logCtx = e.logg.WithSequenceID(logCtx, enrollment.SequenceID.String())

	step, err := deps.sequences.StepAtOrder(ctx, enrollment.SequenceID, enrollment.CurrentStepOrder+1)
	if err != nil {
		return fmt.Errorf("resolve next step: %w", err)
	}
	if step == nil {
		stats.completed++
		return e.completeEnrollment(ctx, tx, deps, logCtx, enrollment, enrollment.CurrentStepOrder)
	}
	logCtx = e.logg.WithFields(logCtx, map[string]any{
		"step_order": step.StepOrder,
		"action":     string(step.ActionType),
	})

	var draft *models.ReplyDraft
	needsDraft := step.RequiresApproval ||
		step.ActionType == enums.ActionTypeReply ||
		step.ActionType == enums.ActionTypeDM
	if needsDraft {
		draft, err = deps.drafts.LatestSendableForLead(ctx, enrollment.LeadID)
		if err != nil {
			return fmt.Errorf("load sendable draft: %w", err)
		}
	}
	if step.RequiresApproval && draft == nil {
		stats.skipped++
		e.metrics.IncSkip(metrics.SkipReasonApprovalPending)
		e.logg.Info(logCtx, "step awaiting draft approval")
		return nil
	}

	allowed, err := deps.gate.Allowed(ctx, step.ActionType)
	if err != nil {
		return fmt.Errorf("rate gate: %w", err)
	}
	if !allowed {
		stats.skipped++
		e.metrics.IncSkip(metrics.SkipReasonRateLimited)
		e.logg.Info(logCtx, "step deferred by rate budget")
		return nil
	}

	lead, err := deps.leads.FindByID(ctx, enrollment.LeadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			stats.skipped++
			e.metrics.IncSkip(metrics.SkipReasonMissingLead)
			e.logg.Warn(logCtx, "enrollment references missing lead")
			return nil
		}
		return fmt.Errorf("load lead: %w", err)
	}

	handler, ok := e.handlers[step.ActionType]
	if !ok {
		stats.skipped++
		e.metrics.IncSkip(metrics.SkipReasonUnknownAction)
		e.logg.Warn(logCtx, "step has unknown action type")
		return nil
	}

	now := e.now().UTC()
	result := e.dispatch(ctx, handler, &stepContext{
		enrollment: enrollment,
		step:       step,
		lead:       lead,
		draft:      draft,
	})

	if _, err := e.recordExecution(ctx, tx, deps, enrollment, step, result, now); err != nil {
		return err
	}

	if !result.ok {
		stats.failed++
		e.metrics.IncStep(string(step.ActionType), string(enums.ExecutionStatusFailed))
		failCtx := logCtx
		if msg, ok := result.payload["error"].(string); ok {
			failCtx = e.logg.WithField(logCtx, "error_detail", msg)
		}
		e.logg.Warn(failCtx, "step execution failed")
		return nil
	}

	stats.advanced++
	e.metrics.IncStep(string(step.ActionType), string(enums.ExecutionStatusExecuted))

	if result.sentDraft != nil {
		if err := deps.drafts.MarkSent(ctx, result.sentDraft.ID, now); err != nil {
			return fmt.Errorf("mark draft sent: %w", err)
		}
		err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDraftSent,
			AggregateType: enums.AggregateDraft,
			AggregateID:   result.sentDraft.ID,
			Actor:         &outbox.ActorRef{Kind: outbox.ActorSystem},
			Version:       1,
			OccurredAt:    now,
			Data: payloads.DraftSentEvent{
				DraftID:      result.sentDraft.ID,
				LeadID:       enrollment.LeadID,
				EnrollmentID: enrollment.ID,
				SentAt:       now,
			},
		})
		if err != nil {
			return fmt.Errorf("emit draft sent: %w", err)
		}
	}

	return e.advance(ctx, tx, deps, logCtx, enrollment, step, now, stats)
}

// advance schedules the step after the one that just executed, or completes
// the enrollment when none remains.
func (e *Engine) advance(ctx context.Context, tx *gorm.DB, deps txDeps, logCtx context.Context, enrollment *models.Enrollment, step *models.SequenceStep, now time.Time, stats *tickStats) error {
	next, err := deps.sequences.StepAtOrder(ctx, enrollment.SequenceID, step.StepOrder+1)
	if err != nil {
		return fmt.Errorf("resolve following step: %w", err)
	}
	if next == nil {
		enrollment.CurrentStepOrder = step.StepOrder
		stats.completed++
		return e.completeEnrollment(ctx, tx, deps, logCtx, enrollment, step.StepOrder)
	}

	nextAt := now.Add(e.jitterDelay(next.DelayHours))
	if err := deps.enrollments.Advance(ctx, enrollment.ID, step.StepOrder, nextAt); err != nil {
		return fmt.Errorf("advance enrollment: %w", err)
	}
	enrollment.CurrentStepOrder = step.StepOrder
	enrollment.NextStepAt = &nextAt

	advCtx := e.logg.WithField(logCtx, "next_step_at", nextAt)
	e.logg.Info(advCtx, "enrollment advanced")
	return nil
}

func (e *Engine) completeEnrollment(ctx context.Context, tx *gorm.DB, deps txDeps, logCtx context.Context, enrollment *models.Enrollment, stepsExecuted int) error {
	now := e.now().UTC()
	if err := deps.enrollments.Complete(ctx, enrollment.ID, now); err != nil {
		return fmt.Errorf("complete enrollment: %w", err)
	}
	enrollment.Status = enums.EnrollmentStatusCompleted
	enrollment.CompletedAt = &now
	enrollment.NextStepAt = nil

	err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEnrollmentCompleted,
		AggregateType: enums.AggregateEnrollment,
		AggregateID:   enrollment.ID,
		Actor:         &outbox.ActorRef{Kind: outbox.ActorSystem},
		Version:       1,
		OccurredAt:    now,
		Data: payloads.EnrollmentCompletedEvent{
			EnrollmentID:  enrollment.ID,
			LeadID:        enrollment.LeadID,
			SequenceID:    enrollment.SequenceID,
			StepsExecuted: stepsExecuted,
			CompletedAt:   now,
		},
	})
	if err != nil {
		return fmt.Errorf("emit enrollment completed: %w", err)
	}
	e.metrics.IncCompleted()
	e.logg.Info(logCtx, "enrollment completed")
	return nil
}

func (e *Engine) recordExecution(ctx context.Context, tx *gorm.DB, deps txDeps, enrollment *models.Enrollment, step *models.SequenceStep, result outcome, now time.Time) (*models.StepExecution, error) {
	status := enums.ExecutionStatusExecuted
	if !result.ok {
		status = enums.ExecutionStatusFailed
	}
	var payload json.RawMessage
	if len(result.payload) > 0 {
		raw, err := json.Marshal(result.payload)
		if err != nil {
			return nil, fmt.Errorf("encode execution result: %w", err)
		}
		payload = raw
	}
	execution, err := deps.executions.Create(ctx, &models.StepExecution{
		EnrollmentID: enrollment.ID,
		StepID:       step.ID,
		ActionType:   step.ActionType,
		Status:       status,
		Result:       payload,
		ExecutedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("record step execution: %w", err)
	}

	event := outbox.DomainEvent{
		AggregateType: enums.AggregateEnrollment,
		AggregateID:   enrollment.ID,
		Actor:         &outbox.ActorRef{Kind: outbox.ActorSystem},
		Version:       1,
		OccurredAt:    now,
	}
	if result.ok {
		event.EventType = enums.EventStepExecuted
		event.Data = payloads.StepExecutedEvent{
			ExecutionID:  execution.ID,
			EnrollmentID: enrollment.ID,
			LeadID:       enrollment.LeadID,
			StepID:       step.ID,
			StepOrder:    step.StepOrder,
			ActionType:   step.ActionType,
			ExecutedAt:   now,
		}
	} else {
		message, _ := result.payload["error"].(string)
		event.EventType = enums.EventStepFailed
		event.Data = payloads.StepFailedEvent{
			ExecutionID:  execution.ID,
			EnrollmentID: enrollment.ID,
			LeadID:       enrollment.LeadID,
			StepID:       step.ID,
			StepOrder:    step.StepOrder,
			ActionType:   step.ActionType,
			Error:        message,
			FailedAt:     now,
		}
	}
	if err := e.outbox.Emit(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("emit step event: %w", err)
	}
	return execution, nil
}

func (e *Engine) dispatch(ctx context.Context, handler handlerFunc, sc *stepContext) outcome {
	dispatchCtx, cancel := context.WithTimeout(ctx, e.connectorTimeout)
	defer cancel()
	return handler(dispatchCtx, sc)
}

// jitterDelay converts a step delay to a duration spread uniformly across
// ±jitterFraction of the base delay.
func (e *Engine) jitterDelay(delayHours float64) time.Duration {
	if delayHours <= 0 {
		return 0
	}
	base := delayHours * float64(time.Hour)
	factor := 1 + (2*e.rand()-1)*jitterFraction
	return time.Duration(base * factor)
}
