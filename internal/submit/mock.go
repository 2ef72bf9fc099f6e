package submit

import (
	"context"
	"sync"

	"shop-miniapp/internal/model"
)

// Mock implements checkout.Submitter for testing.
// SubmitFunc decides the outcome; every call is recorded.
type Mock struct {
	SubmitFunc func(ctx context.Context, order *model.Order) error

	mu     sync.Mutex
	orders []*model.Order
}

// Submit records order and calls SubmitFunc, or succeeds when unset.
func (m *Mock) Submit(ctx context.Context, order *model.Order) error {
	m.mu.Lock()
	m.orders = append(m.orders, order)
	m.mu.Unlock()

	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, order)
	}
	return nil
}

// Calls returns how many times Submit ran.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// Orders returns the submitted orders in call order.
func (m *Mock) Orders() []*model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Order(nil), m.orders...)
}
