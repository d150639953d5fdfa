package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/firmgen/internal/generation"
)

// MockTransport implements generation.Transport for testing
type MockTransport struct {
	// GenerateFn answers both text and vision calls; req.IsVision tells them apart
	GenerateFn func(ctx context.Context, req generation.Request) (string, error)

	// Default response values, used when GenerateFn is nil
	Text string
	Err  error

	// Calls tracks how often each method was called
	Calls struct {
		mu     sync.Mutex
		Text   int
		Vision int
	}
}

var _ generation.Transport = (*MockTransport)(nil)

// GenerateText implements generation.Transport
func (m *MockTransport) GenerateText(ctx context.Context, req generation.Request) (string, error) {
	m.Calls.mu.Lock()
	m.Calls.Text++
	m.Calls.mu.Unlock()
	return m.respond(ctx, req)
}

// GenerateVision implements generation.Transport
func (m *MockTransport) GenerateVision(ctx context.Context, req generation.Request) (string, error) {
	m.Calls.mu.Lock()
	m.Calls.Vision++
	m.Calls.mu.Unlock()
	return m.respond(ctx, req)
}

// TotalCalls returns the number of text plus vision calls.
func (m *MockTransport) TotalCalls() int {
	m.Calls.mu.Lock()
	defer m.Calls.mu.Unlock()
	return m.Calls.Text + m.Calls.Vision
}

func (m *MockTransport) respond(ctx context.Context, req generation.Request) (string, error) {
	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, req)
	}
	return m.Text, m.Err
}
