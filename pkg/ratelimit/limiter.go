package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// Limiter is a sliding-window pacer for outbound platform calls. Acquire
// reports how long the caller should wait before proceeding; it never blocks.
// Authoritative platform rate-limit headers can override the local window via
// UpdateFromHeaders, and that override wins exactly once before the limiter
// reverts to local tracking.
type Limiter struct {
	mu sync.Mutex

	max    int
	window time.Duration
	jitter float64

	timestamps []time.Time
	override   *headerState

	// ignoreStoreUntil suppresses re-adopting a consumed exhausted override
	// from the shared store before its reset passes.
	ignoreStoreUntil time.Time

	scope string
	store StateStore

	now      func() time.Time
	randFunc func() float64
}

type headerState struct {
	remaining int
	resetAt   time.Time
}

// Params configures a Limiter.
type Params struct {
	MaxRequests int
	Window      time.Duration
	JitterRange float64

	// Scope keys the shared state entry; required when Store is set.
	Scope string
	Store StateStore

	Now  func() time.Time
	Rand func() float64
}

func New(params Params) (*Limiter, error) {
	if params.MaxRequests <= 0 {
		return nil, errors.New("max requests must be positive")
	}
	if params.Window <= 0 {
		return nil, errors.New("window must be positive")
	}
	if params.Store != nil && params.Scope == "" {
		return nil, errors.New("scope required when a state store is configured")
	}
	if params.JitterRange < 0 || params.JitterRange >= 1 {
		return nil, errors.New("jitter range must be in [0, 1)")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.Rand == nil {
		params.Rand = rand.Float64
	}
	return &Limiter{
		max:      params.MaxRequests,
		window:   params.Window,
		jitter:   params.JitterRange,
		scope:    params.Scope,
		store:    params.Store,
		now:      params.Now,
		randFunc: params.Rand,
	}, nil
}

// Acquire returns 0 when the caller may proceed immediately, in which case the
// call is recorded against the window. Otherwise it returns the jittered wait
// until capacity frees up; the caller retries after waiting. Store faults
// degrade to local tracking rather than blocking outreach.
func (l *Limiter) Acquire(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if l.override == nil && l.store != nil && !now.Before(l.ignoreStoreUntil) {
		if state, err := l.store.Load(ctx, l.scope); err == nil && state != nil {
			if state.ResetAt.After(now) || state.Remaining > 0 {
				l.override = &headerState{remaining: state.Remaining, resetAt: state.ResetAt}
			}
		}
	}

	if ov := l.override; ov != nil {
		if ov.remaining <= 0 {
			wait := ov.resetAt.Sub(now)
			l.override = nil
			l.ignoreStoreUntil = ov.resetAt
			if wait < 0 {
				wait = 0
			}
			return wait, nil
		}
		ov.remaining--
		l.timestamps = append(l.prune(now), now)
		return 0, nil
	}

	l.timestamps = l.prune(now)
	if len(l.timestamps) < l.max {
		l.timestamps = append(l.timestamps, now)
		return 0, nil
	}

	oldest := l.timestamps[0]
	wait := oldest.Add(l.window).Sub(now)
	wait = l.applyJitter(wait)
	if wait < 0 {
		wait = 0
	}
	return wait, nil
}

// UpdateFromHeaders adopts the platform's own rate-limit accounting. A
// non-positive remaining makes the next Acquire return the time until resetAt.
// When a shared store is configured the state is persisted so sibling
// processes observe the same signal.
func (l *Limiter) UpdateFromHeaders(ctx context.Context, remaining int, resetAt time.Time) error {
	l.mu.Lock()
	l.override = &headerState{remaining: remaining, resetAt: resetAt}
	l.ignoreStoreUntil = time.Time{}
	store := l.store
	scope := l.scope
	l.mu.Unlock()

	if store == nil {
		return nil
	}
	return store.Save(ctx, scope, State{Remaining: remaining, ResetAt: resetAt})
}

// Tokens reports the remaining budget: the header-derived value while an
// override is live, otherwise the free slots in the local window.
func (l *Limiter) Tokens() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.override != nil {
		return l.override.remaining
	}
	l.timestamps = l.prune(l.now())
	return l.max - len(l.timestamps)
}

func (l *Limiter) prune(now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	kept := l.timestamps
	for len(kept) > 0 && !kept[0].After(cutoff) {
		kept = kept[1:]
	}
	return kept
}

func (l *Limiter) applyJitter(wait time.Duration) time.Duration {
	if l.jitter == 0 || wait <= 0 {
		return wait
	}
	// symmetric noise in [-jitter, +jitter]
	factor := 1 + (l.randFunc()*2-1)*l.jitter
	return time.Duration(float64(wait) * factor)
}
