package subscription

import (
	"sync"

	"github.com/rickgao/stocksync/internal/event"
)

// Scope groups subscriptions that share a lifetime. Closing the scope
// releases all of them:
//
//	scope := bus.NewScope()
//	defer scope.Close()
//	scope.Subscribe(event.StockUpdateItems, onItems)
type Scope struct {
	bus *Bus

	mu      sync.Mutex
	handles []*Handle
	closed  bool
}

// NewScope creates an empty scope on b.
func (b *Bus) NewScope() *Scope {
	return &Scope{bus: b}
}

// Subscribe registers fn on the bus and ties it to the scope.
func (s *Scope) Subscribe(name event.Name, fn Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	h, err := s.bus.Subscribe(name, fn)
	if err != nil {
		return err
	}
	s.handles = append(s.handles, h)
	return nil
}

// Len returns the number of subscriptions held.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Close unsubscribes everything in the scope. It is idempotent.
func (s *Scope) Close() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.closed = true
	s.mu.Unlock()

	for _, h := range handles {
		h.Unsubscribe()
	}
}
