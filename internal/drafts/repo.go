package drafts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/pkg/db/models"
	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
)

// Repository persists reply drafts through the review lifecycle.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, draft *models.ReplyDraft) (*models.ReplyDraft, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReplyDraft, error)
	LatestSendableForLead(ctx context.Context, leadID uuid.UUID) (*models.ReplyDraft, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	DeleteRejectedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a drafts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, draft *models.ReplyDraft) (*models.ReplyDraft, error) {
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(draft).Error; err != nil {
		return nil, err
	}
	return draft, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReplyDraft, error) {
	var draft models.ReplyDraft
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&draft).Error
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

// LatestSendableForLead returns the most recently reviewed approved or edited
// draft for the lead, or nil when no reviewer has signed one off yet.
func (r *repository) LatestSendableForLead(ctx context.Context, leadID uuid.UUID) (*models.ReplyDraft, error) {
	var draft models.ReplyDraft
	err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Where("status IN ?", []enums.DraftStatus{enums.DraftStatusApproved, enums.DraftStatusEdited}).
		Order("reviewed_at DESC").
		Order("created_at DESC").
		First(&draft).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *repository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ReplyDraft{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":  enums.DraftStatusSent,
			"sent_at": sentAt,
		}).Error
}

// DeleteRejectedBefore prunes rejected drafts older than the cutoff in
// bounded batches so retention runs keep transactions short.
func (r *repository) DeleteRejectedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	subquery := r.db.WithContext(ctx).
		Model(&models.ReplyDraft{}).
		Select("id").
		Where("status = ?", enums.DraftStatusRejected).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit)
	result := r.db.WithContext(ctx).
		Where("id IN (?)", subquery).
		Delete(&models.ReplyDraft{})
	return result.RowsAffected, result.Error
}

// Text returns the copy a step should send. Reviewer rewrites win over the
// generated text.
func Text(draft *models.ReplyDraft) string {
	if draft == nil {
		return ""
	}
	if draft.FinalText != nil && strings.TrimSpace(*draft.FinalText) != "" {
		return *draft.FinalText
	}
	return draft.GeneratedText
}
