package generation

import (
	"context"
	"fmt"
	"strings"
)

// Request is one prompt for the text or vision model.
type Request struct {
	// Prompt is the user prompt
	Prompt string

	// SystemPrompt optionally frames the conversation
	SystemPrompt string

	// Image, when set, routes the request to the vision model
	Image []byte

	// ImageMIME is the media type of Image; defaults to image/png
	ImageMIME string

	Temperature float32
	MaxTokens   int32
}

// IsVision reports whether the request carries an image.
func (r Request) IsVision() bool {
	return len(r.Image) > 0
}

// Validate checks that the request has something to send.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt cannot be empty", ErrInvalidRequest)
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("%w: max tokens cannot be negative", ErrInvalidRequest)
	}
	return nil
}

// Transport makes a single call to a generative model backend.
// Implementations do not retry; that is the Invoker's job.
type Transport interface {
	// GenerateText sends a text-only prompt to the text model.
	GenerateText(ctx context.Context, req Request) (string, error)

	// GenerateVision sends an image plus prompt to the vision model.
	GenerateVision(ctx context.Context, req Request) (string, error)
}

// Invoker calls the model with retries and timeouts and returns its text.
//
// Errors returned by Invoke wrap ErrModelFailed (as a *ModelError) when the
// backend could not be reached, or ErrInvalidRequest for malformed requests.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// UnavailableTransport fails every call with Reason. It stands in for a backend
// that could not be configured so the rest of the service can still run.
type UnavailableTransport struct {
	Reason string
}

// GenerateText implements Transport.
func (u UnavailableTransport) GenerateText(ctx context.Context, req Request) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrInvalidConfig, u.Reason)
}

// GenerateVision implements Transport.
func (u UnavailableTransport) GenerateVision(ctx context.Context, req Request) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrInvalidConfig, u.Reason)
}
