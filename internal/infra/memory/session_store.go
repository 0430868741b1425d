package memory

import (
	"context"
	"sync"
	"time"

	"open-trivia-rounds/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	slotConfig app.SlotConfig

	mu    sync.RWMutex
	slots map[string]*app.Slot
}

func NewSessionStore(c app.SlotConfig) *SessionStore {
	return &SessionStore{
		slotConfig: c,
		slots:      make(map[string]*app.Slot),
	}
}

func (s *SessionStore) GetOrCreate(id string) (*app.Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok := s.slots[id]; ok {
		return slot, false
	}
	slot := app.NewSlot(id, s.slotConfig)
	s.slots[id] = slot
	return slot, true
}

func (s *SessionStore) Get(id string) (*app.Slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[id]
	return slot, ok
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, id)
}

// Idle lists the slots nobody has watched or touched since before.
func (s *SessionStore) Idle(before time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, slot := range s.slots {
		if slot.IdleSince(before) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Publish is a no-op: in-process subscribers are already notified by the slot.
func (s *SessionStore) Publish(context.Context, app.Update) error {
	return nil
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}
