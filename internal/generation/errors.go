package generation

import (
	"errors"
	"fmt"
)

// Common errors returned by the generation package
var (
	// ErrModelFailed is returned when every attempt against the model backend failed
	ErrModelFailed = errors.New("generative model call failed")

	// ErrInvalidResponse is returned when the model answered with no usable text
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrInvalidRequest is returned when a request is missing its prompt or image
	ErrInvalidRequest = errors.New("invalid model request")

	// ErrInvalidConfig is returned when the transport or invoker configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")
)

// ModelError reports that the backend could not produce an answer.
type ModelError struct {
	// Attempts is how many calls were made before giving up
	Attempts int

	// LastCause is the error from the final attempt
	LastCause error
}

// Error implements the error interface.
func (e *ModelError) Error() string {
	return fmt.Sprintf("model call failed after %d attempts: %v", e.Attempts, e.LastCause)
}

// Unwrap exposes both ErrModelFailed and the last cause to errors.Is / errors.As.
func (e *ModelError) Unwrap() []error {
	if e.LastCause == nil {
		return []error{ErrModelFailed}
	}
	return []error{ErrModelFailed, e.LastCause}
}
