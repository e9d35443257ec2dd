package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, max int, window time.Duration, current *time.Time, randValue float64) *Limiter {
	t.Helper()
	lim, err := New(Params{
		MaxRequests: max,
		Window:      window,
		JitterRange: 0.1,
		Now:         func() time.Time { return *current },
		Rand:        func() float64 { return randValue },
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return lim
}

func TestNewValidatesParams(t *testing.T) {
	if _, err := New(Params{MaxRequests: 0, Window: time.Minute}); err == nil {
		t.Fatal("expected error for zero max requests")
	}
	if _, err := New(Params{MaxRequests: 5, Window: 0}); err == nil {
		t.Fatal("expected error for zero window")
	}
	if _, err := New(Params{MaxRequests: 5, Window: time.Minute, JitterRange: 1.5}); err == nil {
		t.Fatal("expected error for out-of-range jitter")
	}
	if _, err := New(Params{MaxRequests: 5, Window: time.Minute, Store: &fakeStateStore{}}); err == nil {
		t.Fatal("expected error for store without scope")
	}
}

func TestAcquireUnderBudgetReturnsZero(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lim := newTestLimiter(t, 3, time.Minute, &current, 0.5)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		wait, err := lim.Acquire(ctx)
		if err != nil {
			t.Fatalf("acquire %d returned error: %v", i, err)
		}
		if wait != 0 {
			t.Fatalf("acquire %d expected zero wait, got %v", i, wait)
		}
	}
	if got := lim.Tokens(); got != 0 {
		t.Fatalf("expected zero tokens after filling window, got %d", got)
	}
}

func TestAcquireAtBudgetReturnsWaitUntilOldestExits(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// rand 0.5 yields a neutral jitter factor, keeping the wait exact.
	lim := newTestLimiter(t, 2, time.Minute, &current, 0.5)

	ctx := context.Background()
	if _, err := lim.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	current = current.Add(20 * time.Second)
	if _, err := lim.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	current = current.Add(10 * time.Second)
	wait, err := lim.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// oldest entry at t0 exits the window at t0+60s; now is t0+30s.
	if wait != 30*time.Second {
		t.Fatalf("expected 30s wait, got %v", wait)
	}

	// the rejected acquire must not have recorded a timestamp
	if got := lim.Tokens(); got != 0 {
		t.Fatalf("expected zero tokens while saturated, got %d", got)
	}
}

func TestAcquireJitterStaysWithinBounds(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		randValue float64
		want      time.Duration
	}{
		{randValue: 0, want: 54 * time.Second},   // -10%
		{randValue: 1, want: 66 * time.Second},   // +10%
		{randValue: 0.5, want: 60 * time.Second}, // neutral
	} {
		current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		lim := newTestLimiter(t, 1, time.Minute, &current, tc.randValue)
		if _, err := lim.Acquire(ctx); err != nil {
			t.Fatalf("acquire: %v", err)
		}
		wait, err := lim.Acquire(ctx)
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if wait != tc.want {
			t.Fatalf("rand %v: expected %v wait, got %v", tc.randValue, tc.want, wait)
		}
	}
}

func TestWindowSlides(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lim := newTestLimiter(t, 1, time.Minute, &current, 0.5)

	ctx := context.Background()
	if _, err := lim.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	current = current.Add(61 * time.Second)
	wait, err := lim.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if wait != 0 {
		t.Fatalf("expected zero wait after window slid, got %v", wait)
	}
}

func TestUpdateFromHeadersExhaustedConsumedOnce(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lim := newTestLimiter(t, 5, time.Minute, &current, 0.5)

	ctx := context.Background()
	resetAt := current.Add(90 * time.Second)
	if err := lim.UpdateFromHeaders(ctx, 0, resetAt); err != nil {
		t.Fatalf("update from headers: %v", err)
	}
	if got := lim.Tokens(); got != 0 {
		t.Fatalf("expected header-derived zero tokens, got %d", got)
	}

	wait, err := lim.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if wait != 90*time.Second {
		t.Fatalf("expected wait until reset, got %v", wait)
	}

	// override is consumed; local tracking resumes with a free window
	wait, err = lim.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if wait != 0 {
		t.Fatalf("expected local tracking after consumed override, got %v", wait)
	}
}

func TestUpdateFromHeadersPositiveRemainingDrains(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lim := newTestLimiter(t, 1, time.Minute, &current, 0.5)

	ctx := context.Background()
	resetAt := current.Add(2 * time.Minute)
	if err := lim.UpdateFromHeaders(ctx, 2, resetAt); err != nil {
		t.Fatalf("update from headers: %v", err)
	}

	// the platform says two calls are left even though the local window
	// only admits one; headers are authoritative
	for i := 0; i < 2; i++ {
		wait, err := lim.Acquire(ctx)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if wait != 0 {
			t.Fatalf("acquire %d expected zero wait, got %v", i, wait)
		}
	}

	wait, err := lim.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if wait != 2*time.Minute {
		t.Fatalf("expected wait until header reset, got %v", wait)
	}
}

func TestAcquireAdoptsSharedState(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStateStore{}

	writer, err := New(Params{
		MaxRequests: 5,
		Window:      time.Minute,
		Scope:       "bluesky",
		Store:       store,
		Now:         func() time.Time { return current },
		Rand:        func() float64 { return 0.5 },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	reader, err := New(Params{
		MaxRequests: 5,
		Window:      time.Minute,
		Scope:       "bluesky",
		Store:       store,
		Now:         func() time.Time { return current },
		Rand:        func() float64 { return 0.5 },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	resetAt := current.Add(45 * time.Second)
	if err := writer.UpdateFromHeaders(ctx, 0, resetAt); err != nil {
		t.Fatalf("update from headers: %v", err)
	}

	wait, err := reader.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if wait != 45*time.Second {
		t.Fatalf("expected reader to adopt shared exhausted state, got %v", wait)
	}

	// consumed: the reader must not re-adopt the same entry before reset
	wait, err = reader.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if wait != 0 {
		t.Fatalf("expected local tracking after consumption, got %v", wait)
	}
}

type fakeStateStore struct {
	mu     sync.Mutex
	states map[string]State
}

func (f *fakeStateStore) Save(ctx context.Context, scope string, state State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.states == nil {
		f.states = make(map[string]State)
	}
	f.states[scope] = state
	return nil
}

func (f *fakeStateStore) Load(ctx context.Context, scope string) (*State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[scope]
	if !ok {
		return nil, nil
	}
	return &state, nil
}
