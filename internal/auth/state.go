package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/jonboulle/clockwork"
)

// DefaultStateTTL is how long an issued state stays redeemable.
const DefaultStateTTL = 10 * time.Minute

// DefaultMaxPendingStates caps outstanding states. Past the cap the oldest
// state is evicted, so a login flood costs bounded memory.
const DefaultMaxPendingStates = 1024

// StateStore issues single-use anti-forgery state values and remembers them
// server-side until they are consumed, expire or are evicted.
type StateStore struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu sync.Mutex
	// states maps state to expiry. Entries are never touched after Add, so
	// the oldest entry is also the first to expire.
	states *simplelru.LRU[string, time.Time]
}

// StateOption configures a StateStore.
type StateOption func(*stateOptions)

type stateOptions struct {
	maxPending int
}

// WithMaxPending overrides DefaultMaxPendingStates.
func WithMaxPending(n int) StateOption {
	return func(o *stateOptions) {
		if n > 0 {
			o.maxPending = n
		}
	}
}

// NewStateStore creates a StateStore. A nil clock uses the real clock.
func NewStateStore(ttl time.Duration, clock clockwork.Clock, opts ...StateOption) *StateStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}

	o := stateOptions{maxPending: DefaultMaxPendingStates}
	for _, opt := range opts {
		opt(&o)
	}

	states, err := simplelru.NewLRU[string, time.Time](o.maxPending, nil)
	if err != nil {
		panic(fmt.Sprintf("auth: creating state store: %v", err))
	}

	return &StateStore{
		ttl:    ttl,
		clock:  clock,
		states: states,
	}
}

// Issue creates and records a new state value.
func (s *StateStore) Issue() (string, error) {
	state, err := generateState()
	if err != nil {
		return "", err
	}

	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.states.Add(state, now.Add(s.ttl))

	return state, nil
}

// pruneLocked drops expired states from the old end and stops at the first
// live one. Caller must hold s.mu.
func (s *StateStore) pruneLocked(now time.Time) {
	for {
		_, exp, ok := s.states.GetOldest()
		if !ok || now.Before(exp) {
			return
		}
		s.states.RemoveOldest()
	}
}

// Consume reports whether state was issued and not yet used or expired.
// The state is forgotten either way.
func (s *StateStore) Consume(state string) bool {
	if state == "" {
		return false
	}

	s.mu.Lock()
	exp, ok := s.states.Peek(state)
	s.states.Remove(state)
	s.mu.Unlock()

	return ok && s.clock.Now().Before(exp)
}

// Pending returns the number of outstanding states.
func (s *StateStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states.Len()
}
