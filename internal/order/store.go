// Package order implements the order store and the message-driven pipeline
// that creates, pays, cancels, and times out orders.
package order

import (
	"errors"
	"sort"
	"sync"

	"github.com/fairyhunter13/flash-sale-order-simulator/internal/model"
)

var (
	// ErrNotFound is returned for operations on unknown order ids.
	ErrNotFound = errors.New("order: not found")
	// ErrExists is returned when creating an order id that already exists.
	ErrExists = errors.New("order: already exists")
)

// Store keeps every order ever created. Orders are never deleted; terminal
// transitions go through Transition so exactly one resolver wins.
type Store struct {
	mu     sync.RWMutex
	orders map[string]*model.Order
}

// NewStore creates an empty order store.
func NewStore() *Store {
	return &Store{orders: make(map[string]*model.Order)}
}

// Create inserts a new order in AwaitingPayment.
func (s *Store) Create(o model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.OrderID]; ok {
		return ErrExists
	}
	cp := o
	cp.Status = model.StatusAwaitingPayment
	s.orders[o.OrderID] = &cp
	return nil
}

// Get returns a copy of the order.
func (s *Store) Get(orderID string) (model.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// Transition sets the order's status to "to" only if it currently equals
// "from". The check and the write happen under the store lock, so concurrent
// resolvers of the same order serialize and exactly one wins. Returns false
// with a nil error when the order was in some other state.
func (s *Store) Transition(orderID string, from, to model.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

// Snapshot returns all orders sorted by order id.
func (s *Store) Snapshot() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// CountByStatus tallies orders per status.
func (s *Store) CountByStatus() map[model.Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.Status]int)
	for _, o := range s.orders {
		out[o.Status]++
	}
	return out
}

// FirstAwaitingPayment returns the pending order with the smallest id.
func (s *Store) FirstAwaitingPayment() (model.Order, bool) {
	for _, o := range s.Snapshot() {
		if o.Status == model.StatusAwaitingPayment {
			return o, true
		}
	}
	return model.Order{}, false
}
