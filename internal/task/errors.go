package task

import (
	"errors"
	"fmt"
)

// Common errors returned by the task package
var (
	// ErrNotFound is returned when no task exists for an id
	ErrNotFound = errors.New("task not found")

	// ErrConflict is returned when deleting a task that is still processing
	ErrConflict = errors.New("task is processing")

	// ErrNotReady is returned when a result is requested before the task finished
	ErrNotReady = errors.New("task not yet completed")

	// ErrInvalidTransition is returned when a status change would move a task backwards
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrValidation is returned for bad or missing submission fields
	ErrValidation = errors.New("invalid task parameters")

	// ErrSchedulerStopped is returned when submitting to a stopped scheduler
	ErrSchedulerStopped = errors.New("scheduler is stopped")
)

// ValidationError describes one rejected submission field.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
