package pending

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps staged actions in process memory. It suits a single API instance.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	onExpire func(Action)
	actions  map[string]Action
	timers   map[string]*time.Timer
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithExpiryHook registers a callback invoked when an action lapses unconfirmed.
func WithExpiryHook(fn func(Action)) MemoryOption {
	return func(s *MemoryStore) { s.onExpire = fn }
}

// NewMemoryStore builds an in-process store. A non-positive ttl selects DefaultTTL.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		actions: make(map[string]Action),
		timers:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, draft Action) (Action, error) {
	now := s.now().UTC()
	action := draft
	action.ID = uuid.NewString()
	action.PIN = ""
	action.CreatedAt = now
	action.ExpiresAt = now.Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(action.UserID)
	s.actions[action.UserID] = action
	id := action.ID
	userID := action.UserID
	s.timers[userID] = time.AfterFunc(s.ttl, func() { s.expire(userID, id) })
	return action, nil
}

func (s *MemoryStore) Get(_ context.Context, userID string) (Action, bool, error) {
	s.mu.Lock()
	action, ok, lapsed := s.liveLocked(userID)
	s.mu.Unlock()
	if lapsed {
		s.notifyExpired(action)
		return Action{}, false, nil
	}
	return action, ok, nil
}

// Confirm reads and deletes under one lock hold so concurrent confirms cannot both win.
func (s *MemoryStore) Confirm(_ context.Context, userID, pin string) (Action, bool, error) {
	s.mu.Lock()
	action, ok, lapsed := s.liveLocked(userID)
	if ok {
		s.removeLocked(userID)
	}
	s.mu.Unlock()
	if lapsed {
		s.notifyExpired(action)
	}
	if !ok {
		return Action{}, false, nil
	}
	action.PIN = pin
	return action, true, nil
}

func (s *MemoryStore) Cancel(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.actions[userID]
	s.removeLocked(userID)
	return ok, nil
}

// Sweep drops every expired action and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	var expired []Action

	s.mu.Lock()
	for userID, action := range s.actions {
		if action.Expired(now) {
			s.removeLocked(userID)
			expired = append(expired, action)
		}
	}
	s.mu.Unlock()

	for _, action := range expired {
		s.notifyExpired(action)
	}
	return len(expired)
}

// Run sweeps on interval until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Len returns the number of stored actions, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

// liveLocked returns the user's action if it is still inside its window. An
// expired action is removed and returned with lapsed set.
func (s *MemoryStore) liveLocked(userID string) (action Action, live, lapsed bool) {
	action, ok := s.actions[userID]
	if !ok {
		return Action{}, false, false
	}
	if action.Expired(s.now()) {
		s.removeLocked(userID)
		return action, false, true
	}
	return action, true, false
}

func (s *MemoryStore) removeLocked(userID string) {
	if t, ok := s.timers[userID]; ok {
		t.Stop()
		delete(s.timers, userID)
	}
	delete(s.actions, userID)
}

// expire fires from the per-action timer. A superseded action has a different id
// and is left alone.
func (s *MemoryStore) expire(userID, id string) {
	s.mu.Lock()
	action, ok := s.actions[userID]
	if !ok || action.ID != id {
		s.mu.Unlock()
		return
	}
	s.removeLocked(userID)
	s.mu.Unlock()
	s.notifyExpired(action)
}

func (s *MemoryStore) notifyExpired(action Action) {
	if s.onExpire != nil {
		s.onExpire(action)
	}
}
