package task

import (
	"context"
	"sync"
)

// MockRunner implements the Runner interface for testing
type MockRunner struct {
	RunFn func(ctx context.Context, params Params, progress ProgressFunc) (*Result, error)

	mu    sync.Mutex
	calls []Params
}

// NewMockRunner creates a MockRunner that completes every task immediately
func NewMockRunner() *MockRunner {
	return &MockRunner{
		RunFn: func(ctx context.Context, params Params, progress ProgressFunc) (*Result, error) {
			progress(3, "Generating code", 70)
			return &Result{OutputPath: params.OutputPath, GeneratedCode: "int main(void) { return 0; }", CodeLines: 1}, nil
		},
	}
}

// Run records the call and delegates to RunFn
func (m *MockRunner) Run(ctx context.Context, params Params, progress ProgressFunc) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, params)
	m.mu.Unlock()
	return m.RunFn(ctx, params, progress)
}

// Calls returns the params of every Run call so far
func (m *MockRunner) Calls() []Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Params(nil), m.calls...)
}
