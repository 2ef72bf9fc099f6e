// Package cart holds the session cart: product id → quantity, priced against
// the catalog the session was opened with.
package cart

import (
	"shop-miniapp/internal/model"
)

// Catalog resolves product ids to their current metadata.
type Catalog interface {
	Product(id int) (model.Product, bool)
}

// Line is one cart entry. Quantity is always ≥ 1; a line that would drop to
// zero is deleted instead.
type Line struct {
	ProductID int
	Quantity  int
}

// Store is the cart of a single session.
//
// Store is not safe for concurrent use. When a checkout flow owns the store it
// serialises access; direct callers must do the same.
type Store struct {
	catalog     Catalog
	quantities  map[int]int
	order       []int // insertion order of live lines
	subscribers []func()
}

// New creates an empty cart priced against catalog.
func New(catalog Catalog) *Store {
	return &Store{
		catalog:    catalog,
		quantities: make(map[int]int),
	}
}

// Subscribe registers fn to run after every mutation.
// Subscribers run synchronously, in registration order.
func (s *Store) Subscribe(fn func()) {
	s.subscribers = append(s.subscribers, fn)
}

// Add increments the quantity of productID, creating the line if needed.
// Returns a NOT_FOUND APIError if the catalog does not know the product.
func (s *Store) Add(productID int) error {
	if _, ok := s.catalog.Product(productID); !ok {
		return model.NewNotFoundError("product")
	}

	if s.quantities[productID] == 0 {
		s.order = append(s.order, productID)
	}
	s.quantities[productID]++
	s.notify()
	return nil
}

// Remove decrements the quantity of productID and deletes the line at zero.
// Removing an absent product is a no-op and does not notify.
func (s *Store) Remove(productID int) {
	qty, ok := s.quantities[productID]
	if !ok {
		return
	}

	if qty <= 1 {
		delete(s.quantities, productID)
		s.dropFromOrder(productID)
	} else {
		s.quantities[productID] = qty - 1
	}
	s.notify()
}

// Clear empties the cart.
func (s *Store) Clear() {
	if len(s.quantities) == 0 {
		return
	}
	s.quantities = make(map[int]int)
	s.order = nil
	s.notify()
}

// Quantity returns the quantity of productID (0 when absent).
func (s *Store) Quantity(productID int) int {
	return s.quantities[productID]
}

// IsEmpty reports whether no lines remain.
func (s *Store) IsEmpty() bool {
	return len(s.quantities) == 0
}

// Total sums price × quantity using live catalog prices.
// Lines whose product vanished from the catalog contribute nothing.
func (s *Store) Total() model.Price {
	var total model.Price
	for id, qty := range s.quantities {
		p, ok := s.catalog.Product(id)
		if !ok {
			continue
		}
		total += p.Price * model.Price(qty)
	}
	return total
}

// Lines returns the cart lines in the order they were first added.
func (s *Store) Lines() []Line {
	lines := make([]Line, 0, len(s.order))
	for _, id := range s.order {
		lines = append(lines, Line{ProductID: id, Quantity: s.quantities[id]})
	}
	return lines
}

// Snapshot copies the cart into order items with product metadata.
// The result shares nothing with the store.
func (s *Store) Snapshot() []model.OrderItem {
	items := make([]model.OrderItem, 0, len(s.order))
	for _, id := range s.order {
		p, ok := s.catalog.Product(id)
		if !ok {
			continue
		}
		items = append(items, model.OrderItem{Product: p, Quantity: s.quantities[id]})
	}
	return items
}

func (s *Store) dropFromOrder(productID int) {
	for i, id := range s.order {
		if id == productID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *Store) notify() {
	for _, fn := range s.subscribers {
		fn()
	}
}
