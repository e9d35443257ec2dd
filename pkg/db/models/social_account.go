package models

import (
	"time"

	"github.com/google/uuid"
)

// SocialAccount is the acting identity on the social platform. The app
// password is sealed with the service encryption key before it is stored.
type SocialAccount struct {
	ID                   uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID            uuid.UUID  `gorm:"column:project_id;type:uuid;not null"`
	Handle               string     `gorm:"column:handle;not null"`
	DID                  string     `gorm:"column:did;not null"`
	Host                 string     `gorm:"column:host;not null;default:'https://bsky.social'"`
	EncryptedAppPassword []byte     `gorm:"column:encrypted_app_password;type:bytea;not null"`
	Active               bool       `gorm:"column:active;not null;default:true"`
	LastSessionAt        *time.Time `gorm:"column:last_session_at;type:timestamptz"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
