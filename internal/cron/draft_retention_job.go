package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/leadcadencehq/leadcadence-backend/pkg/logger"
)

const defaultDraftTTL = 30 * 24 * time.Hour

type draftRetentionRepo interface {
	DeleteRejectedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// DraftRetentionJobParams configure rejected-draft pruning.
type DraftRetentionJobParams struct {
	Logger     *logger.Logger
	Repository draftRetentionRepo
	TTL        time.Duration
	BatchSize  int
}

// NewDraftRetentionJob builds the job that prunes rejected reply drafts.
// Approved, edited and sent drafts are never touched; only copy an operator
// threw away ages out.
func NewDraftRetentionJob(params DraftRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("drafts repository required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultDraftTTL
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultPruneBatchSize
	}
	return &draftRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		ttl:       ttl,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type draftRetentionJob struct {
	logg      *logger.Logger
	repo      draftRetentionRepo
	ttl       time.Duration
	batchSize int
	now       func() time.Time
}

func (j *draftRetentionJob) Name() string { return "draft-retention" }

func (j *draftRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	var total int64
	for {
		rows, err := j.repo.DeleteRejectedBefore(ctx, cutoff, j.batchSize)
		if err != nil {
			return fmt.Errorf("draft retention: %w", err)
		}
		total += rows
		if rows < int64(j.batchSize) {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
	})
	j.logg.Info(logCtx, "rejected draft prune complete")
	return nil
}
