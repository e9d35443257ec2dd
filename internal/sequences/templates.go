package sequences

import (
	"github.com/google/uuid"

	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
)

type templateStep struct {
	action   enums.ActionType
	delay    float64
	approval bool
}

type sequenceTemplate struct {
	name        string
	description string
	steps       []templateStep
}

// defaultTemplates are the playbooks every project starts with.
var defaultTemplates = []sequenceTemplate{
	{
		name:        "Gentle Touch",
		description: "Like the post, wait a day, then send a reviewed reply.",
		steps: []templateStep{
			{action: enums.ActionTypeLike, delay: 0},
			{action: enums.ActionTypeWait, delay: 24},
			{action: enums.ActionTypeReply, delay: 0, approval: true},
		},
	},
	{
		name:        "Quick Reply",
		description: "Send a reviewed reply as soon as the lead is enrolled.",
		steps: []templateStep{
			{action: enums.ActionTypeReply, delay: 0, approval: true},
		},
	},
}

func (t sequenceTemplate) input(projectID uuid.UUID) CreateSequenceInput {
	description := t.description
	input := CreateSequenceInput{
		ProjectID:   projectID,
		Name:        t.name,
		Description: &description,
		Steps:       make([]StepInput, 0, len(t.steps)),
	}
	for i, step := range t.steps {
		input.Steps = append(input.Steps, StepInput{
			StepOrder:        i + 1,
			ActionType:       step.action,
			DelayHours:       step.delay,
			RequiresApproval: step.approval,
		})
	}
	return input
}
