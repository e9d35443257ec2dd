package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/leadcadencehq/leadcadence-backend/pkg/logger"
)

const defaultTickInterval = time.Minute

type tickEngine interface {
	ExecuteDueSteps(ctx context.Context) (int, error)
}

// leaderLock keeps concurrent workers from running the same tick twice.
type leaderLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Service drives the step engine on a fixed interval. Only the worker that
// holds the leader lock executes a tick; the others skip and retry on the
// next interval.
type Service struct {
	logg     *logger.Logger
	engine   tickEngine
	lock     leaderLock
	interval time.Duration
}

type ServiceParams struct {
	Logger   *logger.Logger
	Engine   tickEngine
	Lock     leaderLock
	Interval time.Duration
}

// NewService builds the sequence tick scheduler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("step engine required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("leader lock required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultTickInterval
	}
	return &Service{
		logg:     params.Logger,
		engine:   params.Engine,
		lock:     params.Lock,
		interval: interval,
	}, nil
}

// Run executes ticks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.runTick(ctx); err != nil {
		s.logg.Error(ctx, "sequence tick failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "sequence scheduler context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runTick(ctx); err != nil {
				s.logg.Error(ctx, "sequence tick failed", err)
			}
		}
	}
}

func (s *Service) runTick(ctx context.Context) error {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire scheduler lock: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "scheduler lock held elsewhere, skipping tick")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "release scheduler lock failed", err)
		}
	}()

	advanced, err := s.engine.ExecuteDueSteps(ctx)
	if err != nil {
		return err
	}
	if advanced > 0 {
		s.logg.Info(s.logg.WithField(ctx, "advanced", advanced), "sequence tick advanced enrollments")
	}
	return nil
}
