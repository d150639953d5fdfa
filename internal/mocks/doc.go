// Package mocks provides shared mock implementations of the model-facing
// interfaces for tests outside the generation package.
//
// Mocks use function fields rather than generated expectations:
//
//	invoker := &mocks.MockInvoker{
//	    InvokeFn: func(ctx context.Context, req generation.Request) (string, error) {
//	        return `{"registers": []}`, nil
//	    },
//	}
//
// Every mock records its calls so tests can assert on what was sent.
package mocks
