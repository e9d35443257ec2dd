package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
	"github.com/leadcadencehq/leadcadence-backend/pkg/logger"
	"github.com/leadcadencehq/leadcadence-backend/pkg/outbox/payloads"
	"github.com/leadcadencehq/leadcadence-backend/pkg/outbox/registry"
)

// ErrUnsupportedEventType marks envelopes no row builder is registered for.
// The worker acks these instead of retrying them.
var ErrUnsupportedEventType = errors.New("unsupported outreach event type")

const payloadVersion = 1

// Writer delivers BigQuery rows produced by the consumer.
type Writer interface {
	InsertOutreachEvent(ctx context.Context, row OutreachEventRow) error
}

type rowBuilder func(envelope Envelope, payload any) (OutreachEventRow, error)

// Consumer turns outreach envelopes into outreach_events rows. Payload
// decoding goes through the versioned decoder registry so a schema bump on
// the producer side fails loudly instead of silently dropping fields.
type Consumer struct {
	writer   Writer
	decoders *registry.DecoderRegistry
	builders map[enums.OutboxEventType]rowBuilder
	logg     *logger.Logger
}

// NewConsumer wires decoders and row builders for every outreach event type.
func NewConsumer(writer Writer, logg *logger.Logger) (*Consumer, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	decoders := registry.NewDecoderRegistry()
	register := func(eventType enums.OutboxEventType, factory func() any) {
		decoders.Register(eventType, payloadVersion, func(raw json.RawMessage) (interface{}, error) {
			target := factory()
			if err := json.Unmarshal(raw, target); err != nil {
				return nil, err
			}
			return target, nil
		})
	}
	register(enums.EventEnrollmentCreated, func() any { return &payloads.EnrollmentCreatedEvent{} })
	register(enums.EventEnrollmentPaused, func() any { return &payloads.EnrollmentStatusEvent{} })
	register(enums.EventEnrollmentResumed, func() any { return &payloads.EnrollmentStatusEvent{} })
	register(enums.EventEnrollmentCompleted, func() any { return &payloads.EnrollmentCompletedEvent{} })
	register(enums.EventStepExecuted, func() any { return &payloads.StepExecutedEvent{} })
	register(enums.EventStepFailed, func() any { return &payloads.StepFailedEvent{} })
	register(enums.EventDraftSent, func() any { return &payloads.DraftSentEvent{} })

	builders := map[enums.OutboxEventType]rowBuilder{
		enums.EventEnrollmentCreated:   buildEnrollmentCreatedRow,
		enums.EventEnrollmentPaused:    buildEnrollmentStatusRow,
		enums.EventEnrollmentResumed:   buildEnrollmentStatusRow,
		enums.EventEnrollmentCompleted: buildEnrollmentCompletedRow,
		enums.EventStepExecuted:        buildStepExecutedRow,
		enums.EventStepFailed:          buildStepFailedRow,
		enums.EventDraftSent:           buildDraftSentRow,
	}

	return &Consumer{
		writer:   writer,
		decoders: decoders,
		builders: builders,
		logg:     logg,
	}, nil
}

// Handle decodes the envelope payload and inserts the matching row.
func (c *Consumer) Handle(ctx context.Context, envelope Envelope) error {
	builder, ok := c.builders[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}

	payload, err := c.decoders.Decode(envelope.EventType, envelope.Version, envelope.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}

	row, err := builder(envelope, payload)
	if err != nil {
		return err
	}

	fields := map[string]any{
		"event_type":     envelope.EventType,
		"aggregate_type": envelope.AggregateType,
		"aggregate_id":   envelope.AggregateID,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	if err := c.writer.InsertOutreachEvent(logCtx, row); err != nil {
		c.logg.Error(logCtx, "failed to insert outreach event row", err)
		return err
	}

	c.logg.Info(logCtx, "outreach event row inserted")
	return nil
}

// baseRow fills the columns shared by every event type. Event builders
// pass the timestamp recorded in the payload; a zero value falls back to
// the envelope's occurred_at.
func baseRow(envelope Envelope, occurred time.Time) (OutreachEventRow, error) {
	if occurred.IsZero() {
		occurred = envelope.OccurredAt
	}

	payloadJSON, err := EncodeJSON(envelope.Payload)
	if err != nil {
		return OutreachEventRow{}, fmt.Errorf("encode payload json: %w", err)
	}

	row := OutreachEventRow{
		EventID:       envelope.EventID,
		EventType:     string(envelope.EventType),
		AggregateType: string(envelope.AggregateType),
		AggregateID:   envelope.AggregateID,
		OccurredAt:    occurred.UTC(),
		Payload:       payloadJSON,
	}
	if envelope.Actor != nil {
		row.ActorKind = stringPtr(envelope.Actor.Kind)
	}
	return row, nil
}

func buildEnrollmentCreatedRow(envelope Envelope, payload any) (OutreachEventRow, error) {
	event, ok := payload.(*payloads.EnrollmentCreatedEvent)
	if !ok {
		return OutreachEventRow{}, fmt.Errorf("invalid payload for %s", envelope.EventType)
	}

	row, err := baseRow(envelope, time.Time{})
	if err != nil {
		return OutreachEventRow{}, err
	}
	row.EnrollmentID = stringPtr(event.EnrollmentID.String())
	row.LeadID = stringPtr(event.LeadID.String())
	row.SequenceID = stringPtr(event.SequenceID.String())
	return row, nil
}

func buildEnrollmentStatusRow(envelope Envelope, payload any) (OutreachEventRow, error) {
	event, ok := payload.(*payloads.EnrollmentStatusEvent)
	if !ok {
		return OutreachEventRow{}, fmt.Errorf("invalid payload for %s", envelope.EventType)
	}

	row, err := baseRow(envelope, event.ChangedAt)
	if err != nil {
		return OutreachEventRow{}, err
	}
	row.EnrollmentID = stringPtr(event.EnrollmentID.String())
	row.LeadID = stringPtr(event.LeadID.String())
	row.SequenceID = stringPtr(event.SequenceID.String())
	return row, nil
}

func buildEnrollmentCompletedRow(envelope Envelope, payload any) (OutreachEventRow, error) {
	event, ok := payload.(*payloads.EnrollmentCompletedEvent)
	if !ok {
		return OutreachEventRow{}, fmt.Errorf("invalid payload for %s", envelope.EventType)
	}

	row, err := baseRow(envelope, event.CompletedAt)
	if err != nil {
		return OutreachEventRow{}, err
	}
	row.EnrollmentID = stringPtr(event.EnrollmentID.String())
	row.LeadID = stringPtr(event.LeadID.String())
	row.SequenceID = stringPtr(event.SequenceID.String())
	row.StepsExecuted = int64Ptr(int64(event.StepsExecuted))
	return row, nil
}

func buildStepExecutedRow(envelope Envelope, payload any) (OutreachEventRow, error) {
	event, ok := payload.(*payloads.StepExecutedEvent)
	if !ok {
		return OutreachEventRow{}, fmt.Errorf("invalid payload for %s", envelope.EventType)
	}

	row, err := baseRow(envelope, event.ExecutedAt)
	if err != nil {
		return OutreachEventRow{}, err
	}
	row.EnrollmentID = stringPtr(event.EnrollmentID.String())
	row.LeadID = stringPtr(event.LeadID.String())
	row.StepID = stringPtr(event.StepID.String())
	row.StepOrder = int64Ptr(int64(event.StepOrder))
	row.ActionType = stringPtr(string(event.ActionType))
	return row, nil
}

func buildStepFailedRow(envelope Envelope, payload any) (OutreachEventRow, error) {
	event, ok := payload.(*payloads.StepFailedEvent)
	if !ok {
		return OutreachEventRow{}, fmt.Errorf("invalid payload for %s", envelope.EventType)
	}

	row, err := baseRow(envelope, event.FailedAt)
	if err != nil {
		return OutreachEventRow{}, err
	}
	row.EnrollmentID = stringPtr(event.EnrollmentID.String())
	row.LeadID = stringPtr(event.LeadID.String())
	row.StepID = stringPtr(event.StepID.String())
	row.StepOrder = int64Ptr(int64(event.StepOrder))
	row.ActionType = stringPtr(string(event.ActionType))
	row.ErrorMessage = stringPtr(event.Error)
	return row, nil
}

func buildDraftSentRow(envelope Envelope, payload any) (OutreachEventRow, error) {
	event, ok := payload.(*payloads.DraftSentEvent)
	if !ok {
		return OutreachEventRow{}, fmt.Errorf("invalid payload for %s", envelope.EventType)
	}

	row, err := baseRow(envelope, event.SentAt)
	if err != nil {
		return OutreachEventRow{}, err
	}
	row.DraftID = stringPtr(event.DraftID.String())
	row.LeadID = stringPtr(event.LeadID.String())
	row.EnrollmentID = stringPtr(event.EnrollmentID.String())
	return row, nil
}
