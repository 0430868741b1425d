package app

import (
	"sync"
	"time"

	"open-trivia-rounds/internal/game"
	"open-trivia-rounds/internal/timer"
)

// Update is what subscribers of a tab receive after every change.
type Update struct {
	SessionID string       `json:"sessionId"`
	Event     string       `json:"event"`
	Game      game.Session `json:"game"`
	Timer     timer.Status `json:"timer"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// SlotConfig is shared by every slot a store creates.
type SlotConfig struct {
	Timer timer.Config
	Now   func() time.Time
}

// Slot holds the one live game session of a browser tab, its question timer
// and the channels watching it.
type Slot struct {
	id  string
	now func() time.Time

	mu          sync.RWMutex
	game        game.Session
	timer       *timer.Runner
	armed       time.Duration
	lastSeen    time.Time
	closed      bool
	subscribers map[chan Update]struct{}
}

// NewSlot is exported for infrastructure layers that create slots on demand.
func NewSlot(id string, c SlotConfig) *Slot {
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Slot{
		id:          id,
		now:         c.Now,
		game:        game.New(),
		timer:       timer.NewRunner(c.Timer),
		lastSeen:    c.Now(),
		subscribers: make(map[chan Update]struct{}),
	}
}

func (s *Slot) ID() string {
	return s.id
}

// Snapshot returns the current state without notifying anyone.
func (s *Slot) Snapshot() Update {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked("snapshot")
}

// IdleSince reports whether nobody watches the slot and nothing touched it after t.
func (s *Slot) IdleSince(t time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers) == 0 && s.lastSeen.Before(t)
}

func (s *Slot) subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 8)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.lastSeen = s.now()
	// sent under the lock so no broadcast can overtake it
	ch <- s.snapshotLocked("snapshot")
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[ch]; !ok {
			return
		}
		delete(s.subscribers, ch)
		close(ch)
		s.lastSeen = s.now()
		// nobody is left to answer, so the question must not time out unseen
		if len(s.subscribers) == 0 && s.timer.Status().State == timer.StateRunning {
			s.timer.Disarm()
		}
	}
	return ch, cancel
}

// close stops the timer and ends every subscription.
func (s *Slot) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer.Clear()
	s.closed = true
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

func (s *Slot) broadcastLocked(event string) Update {
	s.lastSeen = s.now()
	u := s.snapshotLocked(event)
	for ch := range s.subscribers {
		select {
		case ch <- u:
		default:
			// slow reader: drop its oldest update so the latest one always lands
			select {
			case <-ch:
			default:
			}
			ch <- u
		}
	}
	return u
}

func (s *Slot) snapshotLocked(event string) Update {
	return Update{
		SessionID: s.id,
		Event:     event,
		Game:      s.game,
		Timer:     s.timer.Status(),
		UpdatedAt: s.now(),
	}
}
