package rategate

import (
	"context"
	"fmt"
	"time"

	"github.com/leadcadencehq/leadcadence-backend/pkg/config"
	"github.com/leadcadencehq/leadcadence-backend/pkg/enums"
)

type executionCounter interface {
	CountExecutedSince(ctx context.Context, action enums.ActionType, since time.Time) (int64, error)
}

// Policy caps one action type inside a trailing window.
type Policy struct {
	Window time.Duration
	Limit  int
}

// Gate admits outbound actions while their trailing-window budget lasts.
// Counting runs through the caller's transaction so sends earlier in the
// same batch use up budget immediately.
type Gate struct {
	counter  executionCounter
	policies map[enums.ActionType]Policy
	now      func() time.Time
}

// NewGate builds a gate from the configured per-action budgets.
func NewGate(counter executionCounter, cfg config.RateLimitConfig) (*Gate, error) {
	if counter == nil {
		return nil, fmt.Errorf("execution counter required")
	}
	policies := map[enums.ActionType]Policy{
		enums.ActionTypeLike:   {Window: cfg.LikeWindow, Limit: cfg.LikeLimit},
		enums.ActionTypeFollow: {Window: cfg.FollowWindow, Limit: cfg.FollowLimit},
		enums.ActionTypeReply:  {Window: cfg.ReplyWindow, Limit: cfg.ReplyLimit},
		enums.ActionTypeDM:     {Window: cfg.DMWindow, Limit: cfg.DMLimit},
	}
	for action, policy := range policies {
		if policy.Window <= 0 {
			return nil, fmt.Errorf("%s window must be positive", action)
		}
		if policy.Limit < 0 {
			return nil, fmt.Errorf("%s limit must not be negative", action)
		}
	}
	return &Gate{
		counter:  counter,
		policies: policies,
		now:      time.Now,
	}, nil
}

// WithCounter returns a gate counting through the provided counter, usually
// a transaction-bound executions repository.
func (g *Gate) WithCounter(counter executionCounter) *Gate {
	if counter == nil {
		return g
	}
	return &Gate{
		counter:  counter,
		policies: g.policies,
		now:      g.now,
	}
}

// WithClock returns a gate reading time from the provided function.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	if now == nil {
		return g
	}
	return &Gate{
		counter:  g.counter,
		policies: g.policies,
		now:      now,
	}
}

// Allowed reports whether one more send of the action fits its budget.
// Non-outbound actions are always admitted.
func (g *Gate) Allowed(ctx context.Context, action enums.ActionType) (bool, error) {
	if !action.IsOutbound() {
		return true, nil
	}
	policy, ok := g.policies[action]
	if !ok {
		return true, nil
	}
	if policy.Limit == 0 {
		return false, nil
	}
	since := g.now().UTC().Add(-policy.Window)
	used, err := g.counter.CountExecutedSince(ctx, action, since)
	if err != nil {
		return false, err
	}
	return used < int64(policy.Limit), nil
}
