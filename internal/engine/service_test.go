package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/internal/drafts"
	"github.com/leadcadencehq/leadcadence-backend/internal/enrollments"
	"github.com/leadcadencehq/leadcadence-backend/internal/executions"
	"github.com/leadcadencehq/leadcadence-backend/internal/leads"
	"github.com/leadcadencehq/leadcadence-backend/internal/rategate"
	"github.com/leadcadencehq/leadcadence-backend/internal/sequences"
	"github.com/leadcadencehq/leadcadence-backend/pkg/config"
	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
	dbtypes "github.com/leadcadencehq/leadcadence-backend/pkg/db/types"
	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
	"github.com/leadcadencehq/leadcadence-backend/pkg/logger"
	"github.com/leadcadencehq/leadcadence-backend/pkg/outbox"
)

var engineSchema = []string{
	`CREATE TABLE IF NOT EXISTS leads (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  platform_post_id TEXT NOT NULL,
  author_did TEXT NOT NULL,
  author_handle TEXT NOT NULL,
  excerpt TEXT,
  topics TEXT,
  score NUMERIC NOT NULL DEFAULT 0,
  responded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS sequences (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS sequence_steps (
  id TEXT PRIMARY KEY,
  sequence_id TEXT NOT NULL,
  step_order INTEGER NOT NULL,
  action_type TEXT NOT NULL,
  delay_hours REAL NOT NULL DEFAULT 0,
  requires_approval INTEGER NOT NULL DEFAULT 0,
  config TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS enrollments (
  id TEXT PRIMARY KEY,
  lead_id TEXT NOT NULL,
  sequence_id TEXT NOT NULL,
  project_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  current_step_order INTEGER NOT NULL DEFAULT 0,
  next_step_at DATETIME,
  enrolled_at DATETIME,
  completed_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS step_executions (
  id TEXT PRIMARY KEY,
  enrollment_id TEXT NOT NULL,
  step_id TEXT NOT NULL,
  action_type TEXT NOT NULL,
  status TEXT NOT NULL,
  result TEXT,
  executed_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS reply_drafts (
  id TEXT PRIMARY KEY,
  lead_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'generated',
  generated_text TEXT NOT NULL,
  final_text TEXT,
  reviewed_at DATETIME,
  sent_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
}

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type replyCall struct {
	postID string
	text   string
}

type dmCall struct {
	userID string
	text   string
}

type fakeConnector struct {
	likeCalls   []string
	followCalls []string
	replyCalls  []replyCall
	dmCalls     []dmCall

	likeErr   error
	followErr error
	replyErr  error
	dmErr     error
}

func (f *fakeConnector) Like(ctx context.Context, postID string) (bool, error) {
	if f.likeErr != nil {
		return false, f.likeErr
	}
	f.likeCalls = append(f.likeCalls, postID)
	return true, nil
}

func (f *fakeConnector) Follow(ctx context.Context, userID string) (bool, error) {
	if f.followErr != nil {
		return false, f.followErr
	}
	f.followCalls = append(f.followCalls, userID)
	return true, nil
}

func (f *fakeConnector) PostReply(ctx context.Context, postID, text string) (string, error) {
	if f.replyErr != nil {
		return "", f.replyErr
	}
	f.replyCalls = append(f.replyCalls, replyCall{postID: postID, text: text})
	return "at://did:plc:actor/app.bsky.feed.post/reply1", nil
}

func (f *fakeConnector) SendDM(ctx context.Context, userID, text string) (bool, error) {
	if f.dmErr != nil {
		return false, f.dmErr
	}
	f.dmCalls = append(f.dmCalls, dmCall{userID: userID, text: text})
	return true, nil
}

type engineFixture struct {
	db          *gorm.DB
	engine      *Engine
	connector   *fakeConnector
	leads       leads.Repository
	sequences   sequences.Repository
	enrollments enrollments.Repository
	executions  executions.Repository
	drafts      drafts.Repository
	now         time.Time
}

func newEngineFixture(t *testing.T, cfg config.RateLimitConfig) *engineFixture {
	t.Helper()

	dsn := "file:engine_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	for _, stmt := range engineSchema {
		require.NoError(t, db.Exec(stmt).Error)
	}

	logg := logger.New(logger.Options{ServiceName: "engine-test", Output: io.Discard})
	fx := &engineFixture{
		db:          db,
		connector:   &fakeConnector{},
		leads:       leads.NewRepository(db),
		sequences:   sequences.NewRepository(db),
		enrollments: enrollments.NewRepository(db),
		executions:  executions.NewRepository(db),
		drafts:      drafts.NewRepository(db),
		now:         time.Date(2026, 5, 12, 12, 0, 0, 0, time.UTC),
	}

	gate, err := rategate.NewGate(fx.executions, cfg)
	require.NoError(t, err)

	engine, err := New(Params{
		Logger:      logg,
		DB:          gormTxRunner{db: db},
		Enrollments: fx.enrollments,
		Sequences:   fx.sequences,
		Executions:  fx.executions,
		Leads:       fx.leads,
		Drafts:      fx.drafts,
		Gate:        gate,
		Connector:   fx.connector,
		Outbox:      outbox.NewService(outbox.NewRepository(db), logg),
		Config:      config.EngineConfig{BatchSize: 50, ConnectorTimeout: 5 * time.Second},
		Now:         func() time.Time { return fx.now },
		Rand:        func() float64 { return 0.5 },
	})
	require.NoError(t, err)
	fx.engine = engine
	return fx
}

func relaxedLimits() config.RateLimitConfig {
	return config.RateLimitConfig{
		LikeWindow:   time.Hour,
		LikeLimit:    100,
		FollowWindow: time.Hour,
		FollowLimit:  100,
		ReplyWindow:  24 * time.Hour,
		ReplyLimit:   100,
		DMWindow:     24 * time.Hour,
		DMLimit:      100,
	}
}

func (f *engineFixture) seedLead(t *testing.T) *models.Lead {
	t.Helper()
	lead, err := f.leads.Create(context.Background(), &models.Lead{
		ProjectID:      uuid.New(),
		PlatformPostID: "at://did:plc:prospect/app.bsky.feed.post/" + uuid.NewString()[:8],
		AuthorDID:      "did:plc:prospect-" + uuid.NewString()[:8],
		AuthorHandle:   "prospect.bsky.social",
	})
	require.NoError(t, err)
	return lead
}

type stepSpec struct {
	action   enums.ActionType
	delay    float64
	approval bool
	dmText   string
}

func (f *engineFixture) seedSequence(t *testing.T, specs ...stepSpec) (*models.Sequence, []models.SequenceStep) {
	t.Helper()
	ctx := context.Background()
	sequence, err := f.sequences.Create(ctx, &models.Sequence{
		ProjectID: uuid.New(),
		Name:      "Playbook " + uuid.NewString()[:8],
		Active:    true,
	})
	require.NoError(t, err)

	steps := make([]models.SequenceStep, 0, len(specs))
	for i, spec := range specs {
		step := models.SequenceStep{
			SequenceID:       sequence.ID,
			StepOrder:        i + 1,
			ActionType:       spec.action,
			DelayHours:       spec.delay,
			RequiresApproval: spec.approval,
		}
		if spec.dmText != "" {
			text := spec.dmText
			step.Config = &dbtypes.StepConfig{DMText: &text}
		}
		steps = append(steps, step)
	}
	require.NoError(t, f.sequences.CreateSteps(ctx, steps))

	persisted, err := f.sequences.StepsForSequence(ctx, sequence.ID)
	require.NoError(t, err)
	return sequence, persisted
}

func (f *engineFixture) enroll(t *testing.T, lead *models.Lead, sequence *models.Sequence) *models.Enrollment {
	t.Helper()
	due := f.now
	enrollment, err := f.enrollments.Create(context.Background(), &models.Enrollment{
		LeadID:     lead.ID,
		SequenceID: sequence.ID,
		ProjectID:  lead.ProjectID,
		Status:     enums.EnrollmentStatusActive,
		NextStepAt: &due,
		EnrolledAt: due,
	})
	require.NoError(t, err)
	return enrollment
}

func (f *engineFixture) approveDraft(t *testing.T, leadID uuid.UUID, text string) *models.ReplyDraft {
	t.Helper()
	reviewed := f.now.Add(-time.Hour)
	draft, err := f.drafts.Create(context.Background(), &models.ReplyDraft{
		LeadID:        leadID,
		Status:        enums.DraftStatusApproved,
		GeneratedText: text,
		ReviewedAt:    &reviewed,
	})
	require.NoError(t, err)
	return draft
}

func (f *engineFixture) tick(t *testing.T) int {
	t.Helper()
	advanced, err := f.engine.ExecuteDueSteps(context.Background())
	require.NoError(t, err)
	return advanced
}

func (f *engineFixture) reload(t *testing.T, id uuid.UUID) *models.Enrollment {
	t.Helper()
	enrollment, err := f.enrollments.FindByID(context.Background(), id)
	require.NoError(t, err)
	return enrollment
}

func (f *engineFixture) executionRows(t *testing.T, enrollmentID uuid.UUID) []models.StepExecution {
	t.Helper()
	var rows []models.StepExecution
	require.NoError(t, f.db.
		Where("enrollment_id = ?", enrollmentID).
		Order("executed_at ASC").
		Order("id ASC").
		Find(&rows).Error)
	return rows
}

func (f *engineFixture) eventTypes(t *testing.T, aggregateID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.db.
		Where("aggregate_id = ?", aggregateID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error)
	types := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		types = append(types, row.EventType)
	}
	return types
}

func TestGentleTouchLifecycle(t *testing.T) {
	fx := newEngineFixture(t, relaxedLimits())
	lead := fx.seedLead(t)
	sequence, _ := fx.seedSequence(t,
		stepSpec{action: enums.ActionTypeLike, delay: 0},
		stepSpec{action: enums.ActionTypeWait, delay: 24},
		stepSpec{action: enums.ActionTypeReply, delay: 0, approval: true},
	)
	enrollment := fx.enroll(t, lead, sequence)
	draft := fx.approveDraft(t, lead.ID, "loved this post, mind if I share how we approach it?")

	t0 := fx.now

	// Tick at t0 runs the like and schedules the wait a day out.
	assert.Equal(t, 1, fx.tick(t))
	require.Len(t, fx.connector.likeCalls, 1)
	assert.Equal(t, lead.PlatformPostID, fx.connector.likeCalls[0])

	current := fx.reload(t, enrollment.ID)
	assert.Equal(t, 1, current.CurrentStepOrder)
	assert.Equal(t, enums.EnrollmentStatusActive, current.Status)
	require.NotNil(t, current.NextStepAt)
	assert.True(t, current.NextStepAt.Equal(t0.Add(24*time.Hour)),
		"expected next step at t0+24h, got %v", current.NextStepAt)

	// A tick before the wait comes due is a no-op.
	fx.now = t0.Add(12 * time.Hour)
	assert.Equal(t, 0, fx.tick(t))
	assert.Len(t, fx.executionRows(t, enrollment.ID), 1)

	// At t0+24h the wait completes and the reply is due immediately.
	fx.now = t0.Add(24 * time.Hour)
	assert.Equal(t, 1, fx.tick(t))
	current = fx.reload(t, enrollment.ID)
	assert.Equal(t, 2, current.CurrentStepOrder)
	require.NotNil(t, current.NextStepAt)
	assert.True(t, current.NextStepAt.Equal(t0.Add(24*time.Hour)))

	// The next tick sends the reply and completes the enrollment.
	assert.Equal(t, 1, fx.tick(t))
	require.Len(t, fx.connector.replyCalls, 1)
	assert.Equal(t, lead.PlatformPostID, fx.connector.replyCalls[0].postID)
	assert.Equal(t, "loved this post, mind if I share how we approach it?", fx.connector.replyCalls[0].text)

	current = fx.reload(t, enrollment.ID)
	assert.Equal(t, enums.EnrollmentStatusCompleted, current.Status)
	assert.Equal(t, 3, current.CurrentStepOrder)
	assert.Nil(t, current.NextStepAt)
	require.NotNil(t, current.CompletedAt)

	rows := fx.executionRows(t, enrollment.ID)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, enums.ExecutionStatusExecuted, row.Status)
	}
	assert.Equal(t, enums.ActionTypeLike, rows[0].ActionType)
	assert.Equal(t, enums.ActionTypeWait, rows[1].ActionType)
	assert.Equal(t, enums.ActionTypeReply, rows[2].ActionType)

	sent, err := fx.drafts.FindByID(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DraftStatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)

	types := fx.eventTypes(t, enrollment.ID)
	assert.Equal(t, []enums.OutboxEventType{
		enums.EventStepExecuted,
		enums.EventStepExecuted,
		enums.EventStepExecuted,
		enums.EventEnrollmentCompleted,
	}, types)
	draftEvents := fx.eventTypes(t, draft.ID)
	assert.Equal(t, []enums.OutboxEventType{enums.EventDraftSent}, draftEvents)

	// Completed enrollments never come due again.
	assert.Equal(t, 0, fx.tick(t))
}

func TestReplyAwaitingApprovalSkipsWithoutAuditRow(t *testing.T) {
	fx := newEngineFixture(t, relaxedLimits())
	lead := fx.seedLead(t)
	sequence, _ := fx.seedSequence(t,
		stepSpec{action: enums.ActionTypeReply, delay: 0, approval: true},
	)
	enrollment := fx.enroll(t, lead, sequence)

	// Draft exists but nobody reviewed it yet.
	_, err := fx.drafts.Create(context.Background(), &models.ReplyDraft{
		LeadID:        lead.ID,
		Status:        enums.DraftStatusGenerated,
		GeneratedText: "pending copy",
	})
	require.NoError(t, err)

	assert.Equal(t, 0, fx.tick(t))
	assert.Empty(t, fx.executionRows(t, enrollment.ID))
	assert.Empty(t, fx.connector.replyCalls)

	current := fx.reload(t, enrollment.ID)
	assert.Equal(t, 0, current.CurrentStepOrder)
	require.NotNil(t, current.NextStepAt)

	// Approval unblocks the step on the next tick.
	require.NoError(t, fx.db.Model(&models.ReplyDraft{}).
		Where("lead_id = ?", lead.ID).
		Updates(map[string]any{"status": enums.DraftStatusApproved, "reviewed_at": fx.now}).Error)

	assert.Equal(t, 1, fx.tick(t))
	require.Len(t, fx.connector.replyCalls, 1)
	assert.Equal(t, "pending copy", fx.connector.replyCalls[0].text)
}

func TestFailedStepRetriesUntilSuccess(t *testing.T) {
	fx := newEngineFixture(t, relaxedLimits())
	lead := fx.seedLead(t)
	sequence, _ := fx.seedSequence(t,
		stepSpec{action: enums.ActionTypeLike, delay: 0},
	)
	enrollment := fx.enroll(t, lead, sequence)

	fx.connector.likeErr = errors.New("connector timeout")
	assert.Equal(t, 0, fx.tick(t))
	assert.Equal(t, 0, fx.tick(t))

	current := fx.reload(t, enrollment.ID)
	assert.Equal(t, 0, current.CurrentStepOrder)
	assert.Equal(t, enums.EnrollmentStatusActive, current.Status)

	rows := fx.executionRows(t, enrollment.ID)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, enums.ExecutionStatusFailed, row.Status)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(row.Result, &payload))
		assert.Equal(t, "connector timeout", payload["error"])
	}

	fx.connector.likeErr = nil
	assert.Equal(t, 1, fx.tick(t))

	current = fx.reload(t, enrollment.ID)
	assert.Equal(t, enums.EnrollmentStatusCompleted, current.Status)
	rows = fx.executionRows(t, enrollment.ID)
	require.Len(t, rows, 3)
	assert.Equal(t, enums.ExecutionStatusExecuted, rows[2].Status)

	types := fx.eventTypes(t, enrollment.ID)
	assert.Equal(t, []enums.OutboxEventType{
		enums.EventStepFailed,
		enums.EventStepFailed,
		enums.EventStepExecuted,
		enums.EventEnrollmentCompleted,
	}, types)
}

func TestRateGateCapsActionsPerTick(t *testing.T) {
	cfg := relaxedLimits()
	cfg.LikeLimit = 2
	fx := newEngineFixture(t, cfg)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		lead := fx.seedLead(t)
		sequence, _ := fx.seedSequence(t, stepSpec{action: enums.ActionTypeLike, delay: 0})
		ids = append(ids, fx.enroll(t, lead, sequence).ID)
	}

	assert.Equal(t, 2, fx.tick(t))
	assert.Len(t, fx.connector.likeCalls, 2)

	executed := 0
	deferred := 0
	for _, id := range ids {
		current := fx.reload(t, id)
		if current.CurrentStepOrder == 1 {
			executed++
		} else {
			deferred++
			require.NotNil(t, current.NextStepAt, "deferred enrollment must stay due")
		}
	}
	assert.Equal(t, 2, executed)
	assert.Equal(t, 1, deferred)
}

func TestMissingLeadIsHardSkip(t *testing.T) {
	fx := newEngineFixture(t, relaxedLimits())
	sequence, _ := fx.seedSequence(t, stepSpec{action: enums.ActionTypeLike, delay: 0})

	due := fx.now
	enrollment, err := fx.enrollments.Create(context.Background(), &models.Enrollment{
		LeadID:     uuid.New(),
		SequenceID: sequence.ID,
		ProjectID:  uuid.New(),
		Status:     enums.EnrollmentStatusActive,
		NextStepAt: &due,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, fx.tick(t))
	assert.Empty(t, fx.executionRows(t, enrollment.ID))
	assert.Empty(t, fx.connector.likeCalls)

	current := fx.reload(t, enrollment.ID)
	assert.Equal(t, enums.EnrollmentStatusActive, current.Status)
	assert.Equal(t, 0, current.CurrentStepOrder)
}

func TestEnrollmentPastLastStepCompletesWithoutAuditRow(t *testing.T) {
	fx := newEngineFixture(t, relaxedLimits())
	lead := fx.seedLead(t)
	sequence, _ := fx.seedSequence(t, stepSpec{action: enums.ActionTypeLike, delay: 0})

	due := fx.now
	enrollment, err := fx.enrollments.Create(context.Background(), &models.Enrollment{
		LeadID:           lead.ID,
		SequenceID:       sequence.ID,
		ProjectID:        lead.ProjectID,
		Status:           enums.EnrollmentStatusActive,
		CurrentStepOrder: 1,
		NextStepAt:       &due,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, fx.tick(t))

	current := fx.reload(t, enrollment.ID)
	assert.Equal(t, enums.EnrollmentStatusCompleted, current.Status)
	assert.Nil(t, current.NextStepAt)
	require.NotNil(t, current.CompletedAt)
	assert.Empty(t, fx.executionRows(t, enrollment.ID))
	assert.Equal(t, []enums.OutboxEventType{enums.EventEnrollmentCompleted}, fx.eventTypes(t, enrollment.ID))
}

func TestReplyWithoutDraftFailsExecution(t *testing.T) {
	fx := newEngineFixture(t, relaxedLimits())
	lead := fx.seedLead(t)
	sequence, _ := fx.seedSequence(t,
		stepSpec{action: enums.ActionTypeReply, delay: 0},
	)
	enrollment := fx.enroll(t, lead, sequence)

	assert.Equal(t, 0, fx.tick(t))
	assert.Empty(t, fx.connector.replyCalls)

	rows := fx.executionRows(t, enrollment.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.ExecutionStatusFailed, rows[0].Status)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rows[0].Result, &payload))
	assert.Equal(t, "no reviewed draft available", payload["error"])
}

func TestDMTextSelection(t *testing.T) {
	fx := newEngineFixture(t, relaxedLimits())

	configured := fx.seedLead(t)
	seqConfigured, _ := fx.seedSequence(t,
		stepSpec{action: enums.ActionTypeDM, delay: 0, dmText: "configured text wins"},
	)
	fx.enroll(t, configured, seqConfigured)

	drafted := fx.seedLead(t)
	seqDrafted, _ := fx.seedSequence(t, stepSpec{action: enums.ActionTypeDM, delay: 0})
	fx.enroll(t, drafted, seqDrafted)
	fx.approveDraft(t, drafted.ID, "draft text used for dm")

	bare := fx.seedLead(t)
	seqBare, _ := fx.seedSequence(t, stepSpec{action: enums.ActionTypeDM, delay: 0})
	fx.enroll(t, bare, seqBare)

	assert.Equal(t, 3, fx.tick(t))
	require.Len(t, fx.connector.dmCalls, 3)

	texts := map[string]string{}
	for _, call := range fx.connector.dmCalls {
		texts[call.userID] = call.text
	}
	assert.Equal(t, "configured text wins", texts[configured.AuthorDID])
	assert.Equal(t, "draft text used for dm", texts[drafted.AuthorDID])
	assert.Equal(t, defaultDMText, texts[bare.AuthorDID])
}

func TestWaitAndCheckResponseBypassRateGate(t *testing.T) {
	cfg := relaxedLimits()
	cfg.LikeLimit = 0
	cfg.FollowLimit = 0
	cfg.ReplyLimit = 0
	cfg.DMLimit = 0
	fx := newEngineFixture(t, cfg)

	lead := fx.seedLead(t)
	responded := fx.now.Add(-time.Hour)
	require.NoError(t, fx.leads.MarkResponded(context.Background(), lead.ID, responded))

	sequence, _ := fx.seedSequence(t,
		stepSpec{action: enums.ActionTypeWait, delay: 0},
		stepSpec{action: enums.ActionTypeCheckResponse, delay: 0},
	)
	enrollment := fx.enroll(t, lead, sequence)

	assert.Equal(t, 1, fx.tick(t))
	assert.Equal(t, 1, fx.tick(t))

	current := fx.reload(t, enrollment.ID)
	assert.Equal(t, enums.EnrollmentStatusCompleted, current.Status)

	rows := fx.executionRows(t, enrollment.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.ActionTypeWait, rows[0].ActionType)
	assert.Equal(t, enums.ActionTypeCheckResponse, rows[1].ActionType)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rows[1].Result, &payload))
	assert.Equal(t, true, payload["responded"])
}

func TestJitterBounds(t *testing.T) {
	fx := newEngineFixture(t, relaxedLimits())

	low := 16*time.Hour + 48*time.Minute
	high := 31*time.Hour + 12*time.Minute
	for _, r := range []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 0.999} {
		fx.engine.rand = func() float64 { return r }
		delay := fx.engine.jitterDelay(24)
		if delay < low || delay > high {
			t.Fatalf("jittered delay %v for rand %v outside [%v, %v]", delay, r, low, high)
		}
	}

	fx.engine.rand = func() float64 { return 0 }
	assert.InDelta(t, float64(low), float64(fx.engine.jitterDelay(24)), float64(time.Millisecond))

	assert.Equal(t, time.Duration(0), fx.engine.jitterDelay(0))
}

func TestPausedEnrollmentsAreNotPicked(t *testing.T) {
	fx := newEngineFixture(t, relaxedLimits())
	lead := fx.seedLead(t)
	sequence, _ := fx.seedSequence(t, stepSpec{action: enums.ActionTypeLike, delay: 0})
	enrollment := fx.enroll(t, lead, sequence)

	require.NoError(t, fx.enrollments.UpdateStatus(context.Background(), enrollment.ID, enums.EnrollmentStatusPaused))

	assert.Equal(t, 0, fx.tick(t))
	assert.Empty(t, fx.connector.likeCalls)
	assert.Empty(t, fx.executionRows(t, enrollment.ID))
}
