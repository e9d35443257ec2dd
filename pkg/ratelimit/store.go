package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is the header-derived limiter snapshot shared between processes.
type State struct {
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// StateStore persists authoritative limiter state under a scope key.
type StateStore interface {
	Save(ctx context.Context, scope string, state State) error
	Load(ctx context.Context, scope string) (*State, error)
}

type limiterStateClient interface {
	StoreLimiterState(ctx context.Context, scope, state string, ttl time.Duration) error
	GetLimiterState(ctx context.Context, scope string) (string, error)
}

// RedisStateStore shares limiter state through Redis. Writers within one
// process are serialized per scope; cross-process writes are last-write-wins,
// acceptable because only the tick leader writes a given scope.
type RedisStateStore struct {
	client limiterStateClient
	now    func() time.Time

	mu     sync.Mutex
	scopes map[string]*sync.Mutex
}

const stateTTLSlack = time.Minute

func NewRedisStateStore(client limiterStateClient) (*RedisStateStore, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	return &RedisStateStore{
		client: client,
		now:    time.Now,
		scopes: make(map[string]*sync.Mutex),
	}, nil
}

func (s *RedisStateStore) Save(ctx context.Context, scope string, state State) error {
	lock := s.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding limiter state: %w", err)
	}

	ttl := stateTTLSlack
	if until := state.ResetAt.Sub(s.now()); until > 0 {
		ttl = until + stateTTLSlack
	}
	return s.client.StoreLimiterState(ctx, scope, string(encoded), ttl)
}

func (s *RedisStateStore) Load(ctx context.Context, scope string) (*State, error) {
	lock := s.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	raw, err := s.client.GetLimiterState(ctx, scope)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decoding limiter state: %w", err)
	}
	return &state, nil
}

func (s *RedisStateStore) scopeLock(scope string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.scopes[scope]
	if !ok {
		lock = &sync.Mutex{}
		s.scopes[scope] = lock
	}
	return lock
}
