package state

import (
	"sync"
	"time"
)

// Observer is notified after the state has changed. It carries no payload;
// implementations call Store.Snapshot, which is guaranteed to return a
// version at least as new as the change that triggered the call.
//
// StateChanged runs on the decode goroutine and must not block; a slow
// observer stalls reading from the byte source. Consumers that do real work
// should use Subscribe instead.
type Observer interface {
	StateChanged()
}

// ObserverFunc adapts a plain function to Observer
type ObserverFunc func()

// StateChanged calls f()
func (f ObserverFunc) StateChanged() { f() }

// Store guards the current State
type Store struct {
	mu    sync.RWMutex
	state State

	// observers and subscribers are touched only under subMu
	subMu     sync.Mutex
	observers []Observer
	subs      map[chan State]struct{}

	now func() time.Time
}

// NewStore creates an empty store (every reading unknown, Celsius, no indicators)
func NewStore() *Store {
	return &Store{
		subs: make(map[chan State]struct{}),
		now:  time.Now,
	}
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Version returns the current state version
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Version
}

// Update applies fn to a copy of the state. If the observed fields changed,
// the copy replaces the current state with Version incremented, and
// observers and subscribers are notified once the lock is released.
// Returns whether anything changed.
func (s *Store) Update(fn func(*State)) bool {
	s.mu.Lock()
	next := s.state
	fn(&next)
	if sameReadings(next, s.state) {
		s.mu.Unlock()
		return false
	}
	next.Version = s.state.Version + 1
	next.UpdatedAt = s.now()
	s.state = next

	// Lock order is mu then subMu, so subscribers see versions in order
	s.subMu.Lock()
	s.mu.Unlock()
	observers := s.publishLocked(next)
	s.subMu.Unlock()

	for _, o := range observers {
		o.StateChanged()
	}
	return true
}

// AddObserver registers o for change notifications
func (s *Store) AddObserver(o Observer) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.observers = append(s.observers, o)
}

// Subscribe returns a channel that receives the newest snapshot after each
// change. The channel holds at most one pending snapshot; a slow reader
// skips intermediate versions but always ends up with the latest one.
// Call the returned function to unsubscribe and close the channel.
func (s *Store) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, ch)
			close(ch)
			s.subMu.Unlock()
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of open subscriptions
func (s *Store) SubscriberCount() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

// publishLocked hands snap to every subscriber and returns a copy of the
// observer list. Caller holds subMu.
func (s *Store) publishLocked(snap State) []Observer {
	for ch := range s.subs {
		offerLatest(ch, snap)
	}
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	return observers
}

// offerLatest replaces any pending snapshot in ch with snap
func offerLatest(ch chan State, snap State) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
