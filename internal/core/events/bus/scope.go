package bus

import (
	"errors"
	"sync"
)

// Scope is an arena of subscriptions owned by one component. Close cancels
// every subscription made through the scope; later subscriptions fail with
// ErrScopeClosed.
type Scope struct {
	bus    EventBus
	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

func NewScope(b EventBus) *Scope {
	return &Scope{bus: b}
}

func (s *Scope) Subscribe(eventType string, handler EventHandler) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrScopeClosed
	}
	sub, err := s.bus.Subscribe(eventType, handler)
	if err != nil {
		return nil, err
	}
	s.subs = append(s.subs, sub)
	return sub, nil
}

// Len reports how many subscriptions are still active.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs {
		if sub.IsActive() {
			n++
		}
	}
	return n
}

// Reset cancels the current subscriptions but keeps the scope usable.
func (s *Scope) Reset() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	return cancelAll(subs)
}

func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	return cancelAll(subs)
}

func cancelAll(subs []Subscription) error {
	var all error
	for _, sub := range subs {
		all = errors.Join(all, sub.Cancel())
	}
	return all
}
