package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/leadcadencehq/leadcadence-backend/pkg/logger"
)

const (
	defaultOutboxPublishedTTL = 7 * 24 * time.Hour
	defaultTerminalAttempts   = 10
	defaultPruneBatchSize     = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
	DeleteTerminalBefore(tx *gorm.DB, cutoff time.Time, maxAttempts, limit int) (int64, error)
}

// OutboxRetentionJobParams configure the outbox pruning job.
type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	DB           txRunner
	Repository   outboxRetentionRepo
	PublishedTTL time.Duration
	MaxAttempts  int
	BatchSize    int
}

// NewOutboxRetentionJob builds the job that prunes delivered and dead outbox
// rows. Terminal rows already have a DLQ copy, so both classes are safe to
// drop once past the retention window.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	ttl := params.PublishedTTL
	if ttl <= 0 {
		ttl = defaultOutboxPublishedTTL
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultTerminalAttempts
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultPruneBatchSize
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		batchSize:   batchSize,
		now:         time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRetentionRepo
	ttl         time.Duration
	maxAttempts int
	batchSize   int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	var errs []error
	if err := j.prunePublished(ctx, cutoff); err != nil {
		errs = append(errs, err)
	}
	if err := j.pruneTerminal(ctx, cutoff); err != nil {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}

func (j *outboxRetentionJob) prunePublished(ctx context.Context, cutoff time.Time) error {
	total, err := j.pruneInBatches(ctx, func(tx *gorm.DB) (int64, error) {
		return j.repo.DeletePublishedBefore(tx, cutoff, j.batchSize)
	})
	if err != nil {
		return fmt.Errorf("prune published events: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
	})
	j.logg.Info(logCtx, "published outbox prune complete")
	return nil
}

func (j *outboxRetentionJob) pruneTerminal(ctx context.Context, cutoff time.Time) error {
	total, err := j.pruneInBatches(ctx, func(tx *gorm.DB) (int64, error) {
		return j.repo.DeleteTerminalBefore(tx, cutoff, j.maxAttempts, j.batchSize)
	})
	if err != nil {
		return fmt.Errorf("prune terminal events: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"max_attempts": j.maxAttempts,
		"rows_deleted": total,
	})
	j.logg.Info(logCtx, "terminal outbox prune complete")
	return nil
}

// pruneInBatches deletes in capped rounds so each transaction stays short.
func (j *outboxRetentionJob) pruneInBatches(ctx context.Context, deleteBatch func(tx *gorm.DB) (int64, error)) (int64, error) {
	var total int64
	for {
		var rows int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := deleteBatch(tx)
			if err != nil {
				return err
			}
			rows = n
			return nil
		})
		if err != nil {
			return total, err
		}
		total += rows
		if rows < int64(j.batchSize) {
			return total, nil
		}
	}
}
