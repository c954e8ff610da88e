package calibration

import (
	"sync"
	"time"
)

// EventKind distinguishes change notifications
type EventKind string

const (
	// EventStorageChange is any write to the calibration store
	EventStorageChange EventKind = "storage-change"
	// EventCalibrationToggled is an enable/disable of the calibration
	EventCalibrationToggled EventKind = "calibration-toggled"
)

// Event is one change notification
type Event struct {
	Kind  EventKind `json:"kind"`
	Key   string    `json:"key,omitempty"`
	Value string    `json:"value,omitempty"`
	Time  time.Time `json:"time"`
}

type subscription struct {
	id int
	fn func(Event)
}

// Bus fans change events out to subscribers in subscription order. Handlers
// run synchronously on the publishing goroutine and must not block.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
	next int
}

// NewBus creates an empty Bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns its unsubscribe function
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.subs = append(b.subs, subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every subscriber
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, sub := range b.subs {
		handlers = append(handlers, sub.fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Subscribers returns the current subscriber count
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// ObservedStore publishes a storage-change event for every successful Set,
// plus a toggle event when the enabled flag is written
type ObservedStore struct {
	Store
	bus *Bus
}

// Observe wraps store so writes are announced on bus
func Observe(store Store, bus *Bus) *ObservedStore {
	return &ObservedStore{Store: store, bus: bus}
}

// Set implements Store
func (s *ObservedStore) Set(key, value string) error {
	if err := s.Store.Set(key, value); err != nil {
		return err
	}

	s.bus.Publish(Event{Kind: EventStorageChange, Key: key, Value: value})
	if key == KeyCalibrationEnabled {
		s.bus.Publish(Event{Kind: EventCalibrationToggled, Key: key, Value: value})
	}
	return nil
}
