package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/firmgen/internal/generation"
)

// MockInvoker implements generation.Invoker for testing
type MockInvoker struct {
	// InvokeFn allows test cases to mock the Invoke behavior
	InvokeFn func(ctx context.Context, req generation.Request) (string, error)

	// Default response values, used when InvokeFn is nil
	Text string
	Err  error

	mu       sync.Mutex
	requests []generation.Request
}

var _ generation.Invoker = (*MockInvoker)(nil)

// Invoke records req and delegates to InvokeFn or the default values.
func (m *MockInvoker) Invoke(ctx context.Context, req generation.Request) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.InvokeFn != nil {
		return m.InvokeFn(ctx, req)
	}
	return m.Text, m.Err
}

// Requests returns every request received so far, in order.
func (m *MockInvoker) Requests() []generation.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generation.Request(nil), m.requests...)
}
