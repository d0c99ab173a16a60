package codestore

import (
	"sync"
	"time"
)

// Saver debounces writes: rapid successive saves of the same key collapse
// into one store write carrying the latest value after the window lapses.
type Saver struct {
	store  Store
	window time.Duration

	mu      sync.Mutex
	pending map[string]string
	timer   *time.Timer
	closed  bool
}

func NewSaver(store Store, window time.Duration) *Saver {
	return &Saver{
		store:   store,
		window:  window,
		pending: make(map[string]string),
	}
}

// Save schedules a write. The debounce timer restarts on every call, so
// only the last value within a burst reaches the store.
func (s *Saver) Save(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending[key] = value
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.window, s.flush)
}

func (s *Saver) flush() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]string)
	s.mu.Unlock()

	for k, v := range pending {
		s.store.Set(k, v)
	}
}

// Flush writes everything pending immediately.
func (s *Saver) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.flush()
}

// Close stops the timer and drops anything still pending. After Close no
// timers remain scheduled.
func (s *Saver) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = make(map[string]string)
}
