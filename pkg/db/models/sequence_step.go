package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/leadcadencehq/leadcadence-backend/pkg/db/types"
	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
)

// SequenceStep is one action slot in a sequence. Step orders are contiguous
// from 1 within a sequence; the engine never skips an order.
type SequenceStep struct {
	ID               uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SequenceID       uuid.UUID           `gorm:"column:sequence_id;type:uuid;not null"`
	StepOrder        int                 `gorm:"column:step_order;not null"`
	ActionType       enums.ActionType    `gorm:"column:action_type;type:action_type;not null"`
	DelayHours       float64             `gorm:"column:delay_hours;type:double precision;not null;default:0"`
	RequiresApproval bool                `gorm:"column:requires_approval;not null;default:false"`
	Config           *dbtypes.StepConfig `gorm:"column:config;type:jsonb"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
