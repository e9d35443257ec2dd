package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Lead is a scored, normalized post worth engaging. Scoring and ingestion
// happen upstream; this backend only reads leads when executing steps.
type Lead struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID      uuid.UUID       `gorm:"column:project_id;type:uuid;not null"`
	PlatformPostID string          `gorm:"column:platform_post_id;not null"`
	AuthorDID      string          `gorm:"column:author_did;not null"`
	AuthorHandle   string          `gorm:"column:author_handle;not null"`
	Excerpt        *string         `gorm:"column:excerpt"`
	Topics         pq.StringArray  `gorm:"column:topics;type:text[]"`
	Score          decimal.Decimal `gorm:"column:score;type:numeric(6,3);not null;default:0"`
	RespondedAt    *time.Time      `gorm:"column:responded_at;type:timestamptz"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
