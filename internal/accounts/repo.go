package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
)

// Repository persists social platform accounts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.SocialAccount) (*models.SocialAccount, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.SocialAccount, error)
	FindActiveByProject(ctx context.Context, projectID uuid.UUID) (*models.SocialAccount, error)
	MarkSessionUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an accounts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, account *models.SocialAccount) (*models.SocialAccount, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SocialAccount, error) {
	var account models.SocialAccount
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindActiveByProject returns the newest active account for the project.
func (r *repository) FindActiveByProject(ctx context.Context, projectID uuid.UUID) (*models.SocialAccount, error) {
	var account models.SocialAccount
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Where("active = ?", true).
		Order("created_at DESC").
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) MarkSessionUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.SocialAccount{}).
		Where("id = ?", id).
		Update("last_session_at", usedAt).Error
}

func (r *repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.SocialAccount{}).
		Where("id = ?", id).
		Update("active", false).Error
}
