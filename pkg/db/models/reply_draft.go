package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
)

// ReplyDraft holds generated outreach copy awaiting human review. The engine
// only consumes drafts in approved or edited status; final_text wins over
// generated_text when a reviewer rewrote the copy.
type ReplyDraft struct {
	ID            uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	LeadID        uuid.UUID         `gorm:"column:lead_id;type:uuid;not null"`
	Status        enums.DraftStatus `gorm:"column:status;type:draft_status;not null;default:'generated'"`
	GeneratedText string            `gorm:"column:generated_text;not null"`
	FinalText     *string           `gorm:"column:final_text"`
	ReviewedAt    *time.Time        `gorm:"column:reviewed_at;type:timestamptz"`
	SentAt        *time.Time        `gorm:"column:sent_at;type:timestamptz"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
