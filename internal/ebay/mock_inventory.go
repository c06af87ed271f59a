package ebay

import (
	"context"
	"sync"
)

// MockInventoryAPI is a test double for InventoryAPI.
// Each method can be overridden with a custom function.
// If not overridden, methods succeed with fixed identifiers.
// Thread-safe for use in concurrent tests.
type MockInventoryAPI struct {
	CreateOrReplaceInventoryItemFunc func(ctx context.Context, sku string, item *InventoryItem) error
	CreateOfferFunc                  func(ctx context.Context, offer *Offer) (string, error)
	PublishOfferFunc                 func(ctx context.Context, offerID string) (string, error)

	mu sync.Mutex

	// Calls tracks all method invocations for assertions
	Calls []MockCall
}

// MockCall records a method call for test assertions.
type MockCall struct {
	Method string
	Args   []any
}

var _ InventoryAPI = (*MockInventoryAPI)(nil)

func (m *MockInventoryAPI) CreateOrReplaceInventoryItem(ctx context.Context, sku string, item *InventoryItem) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "CreateOrReplaceInventoryItem", Args: []any{sku, item}})
	fn := m.CreateOrReplaceInventoryItemFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, sku, item)
	}
	return nil
}

func (m *MockInventoryAPI) CreateOffer(ctx context.Context, offer *Offer) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "CreateOffer", Args: []any{offer}})
	fn := m.CreateOfferFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, offer)
	}
	return "mock-offer-id", nil
}

func (m *MockInventoryAPI) PublishOffer(ctx context.Context, offerID string) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "PublishOffer", Args: []any{offerID}})
	fn := m.PublishOfferFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, offerID)
	}
	return "mock-listing-id", nil
}

// CallCount returns the number of times a method was called.
func (m *MockInventoryAPI) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, call := range m.Calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

// LastCallArgs returns the arguments from the last call to the specified method.
func (m *MockInventoryAPI) LastCallArgs(method string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Method == method {
			return m.Calls[i].Args
		}
	}
	return nil
}
