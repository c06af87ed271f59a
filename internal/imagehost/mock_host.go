package imagehost

import (
	"context"
	"fmt"
	"sync"
)

// MockHost is a test double for Host.
// Each method can be overridden with a custom function.
// If not overridden, uploads return sequential fake images.
// Thread-safe for use in concurrent tests.
type MockHost struct {
	UploadFunc func(ctx context.Context, data []byte, filename string) (*Image, error)
	DeleteFunc func(ctx context.Context, id string) error

	mu      sync.Mutex
	uploads int

	// Calls tracks all method invocations for assertions
	Calls []MockCall
}

// MockCall records a method call for test assertions.
type MockCall struct {
	Method string
	Args   []any
}

var _ Host = (*MockHost)(nil)

func (m *MockHost) Upload(ctx context.Context, data []byte, filename string) (*Image, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Upload", Args: []any{len(data), filename}})
	fn := m.UploadFunc
	m.uploads++
	n := m.uploads
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, data, filename)
	}
	return &Image{
		URL: fmt.Sprintf("https://img.example.com/%d.jpg", n),
		ID:  fmt.Sprintf("img-%d", n),
	}, nil
}

func (m *MockHost) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Delete", Args: []any{id}})
	fn := m.DeleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	return nil
}

// CallCount returns the number of times a method was called.
func (m *MockHost) CallCount(method string) int {
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

// CallArgs returns the arguments of every call to method, in order.
func (m *MockHost) CallArgs(method string) [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]any
	for _, call := range m.Calls {
		if call.Method == method {
			out = append(out, call.Args)
		}
	}
	return out
}
