package leads

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
)

// Repository persists captured leads.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, lead *models.Lead) (*models.Lead, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	FindByPlatformPost(ctx context.Context, projectID uuid.UUID, platformPostID, authorDID string) (*models.Lead, error)
	MarkResponded(ctx context.Context, id uuid.UUID, respondedAt time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a leads repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, lead *models.Lead) (*models.Lead, error) {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(lead).Error; err != nil {
		return nil, err
	}
	return lead, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&lead).Error
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *repository) FindByPlatformPost(ctx context.Context, projectID uuid.UUID, platformPostID, authorDID string) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Where("platform_post_id = ?", platformPostID).
		Where("author_did = ?", authorDID).
		First(&lead).Error
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// MarkResponded stamps the first observed response. Later responses keep the
// original timestamp.
func (r *repository) MarkResponded(ctx context.Context, id uuid.UUID, respondedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Lead{}).
		Where("id = ?", id).
		Where("responded_at IS NULL").
		Update("responded_at", respondedAt).Error
}
