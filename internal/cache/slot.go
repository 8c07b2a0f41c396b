// Package cache provides the single-value expiring cell the proxy builds its
// snapshot and derived-table caches on.
package cache

import (
	"sync"
	"time"
)

// Observer is notified of every Get with its outcome.
type Observer func(hit bool)

// Option configures a Slot.
type Option func(*options)

type options struct {
	now      func() time.Time
	observer Observer
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithObserver registers a hit/miss observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// Slot holds at most one value with an absolute expiry. An expired value is
// dropped on the next Get, never merely flagged.
type Slot[T any] struct {
	mu        sync.Mutex
	value     T
	set       bool
	expiresAt time.Time

	now      func() time.Time
	observer Observer
}

// NewSlot creates an empty slot.
func NewSlot[T any](opts ...Option) *Slot[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Slot[T]{now: o.now, observer: o.observer}
}

// Get returns the stored value if the current time is before its expiry.
func (s *Slot[T]) Get() (T, bool) {
	s.mu.Lock()
	v, ok := s.getLocked()
	s.mu.Unlock()

	if s.observer != nil {
		s.observer(ok)
	}
	return v, ok
}

func (s *Slot[T]) getLocked() (T, bool) {
	var zero T
	if !s.set {
		return zero, false
	}
	if !s.now().Before(s.expiresAt) {
		s.value = zero
		s.set = false
		return zero, false
	}
	return s.value, true
}

// Set stores value until now+ttl. A ttl of zero or less stores a value that
// is already expired.
func (s *Slot[T]) Set(value T, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = value
	s.set = true
	s.expiresAt = s.now().Add(ttl)
}

// Clear discards the stored value unconditionally.
func (s *Slot[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	s.value = zero
	s.set = false
	s.expiresAt = time.Time{}
}
