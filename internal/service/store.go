package service

import (
	"sync"

	"github.com/shuleplus/backend/internal/domain"
)

// StateStore holds the current subscription record per user. It is the
// single source of truth consulted by the access gate and the handlers.
// Writers are the confirmation poller (on Confirmed) and the bootstrap path
// in SubscriptionService; every other consumer is read-only.
type StateStore struct {
	mu      sync.RWMutex
	records map[string]*domain.SubscriptionRecord
	subs    []func(userID string, rec *domain.SubscriptionRecord)
}

// NewStateStore creates an empty StateStore.
func NewStateStore() *StateStore {
	return &StateStore{records: make(map[string]*domain.SubscriptionRecord)}
}

// Set replaces the user's current record and notifies subscribers
// synchronously.
func (s *StateStore) Set(userID string, rec *domain.SubscriptionRecord) {
	s.mu.Lock()
	s.records[userID] = rec
	subs := make([]func(string, *domain.SubscriptionRecord), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	// Notify outside the lock so subscribers may call Get.
	for _, fn := range subs {
		fn(userID, rec)
	}
}

// Get returns the user's current record, or nil if none is held.
func (s *StateStore) Get(userID string) *domain.SubscriptionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[userID]
}

// Clear drops the user's record, used on logout.
func (s *StateStore) Clear(userID string) {
	s.mu.Lock()
	delete(s.records, userID)
	s.mu.Unlock()
}

// Subscribe registers a change listener invoked on every Set.
func (s *StateStore) Subscribe(fn func(userID string, rec *domain.SubscriptionRecord)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}
