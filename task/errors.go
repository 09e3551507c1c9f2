package task

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned when a caller-supplied argument is
// structurally invalid (e.g. a non-positive max_size on GetResults, or an
// unknown output buffer id).
var ErrInvalidArgument = errors.New("quarry/task: invalid argument")

// ErrInvalidState is returned by Update when a plan fragment is required but
// absent while the task holder is still Empty.
var ErrInvalidState = errors.New("quarry/task: invalid task state")

// ExecutionFailureError wraps a cause reported by the execution runtime.
// Update recovers from it by transitioning the task to Failed and returning
// the post-failure TaskInfo rather than propagating the error.
type ExecutionFailureError struct {
	Cause error
}

func (e *ExecutionFailureError) Error() string {
	return fmt.Sprintf("execution failure: %v", e.Cause)
}

func (e *ExecutionFailureError) Unwrap() error {
	return e.Cause
}

// FatalError wraps an unrecoverable error. Update marks the task Failed and
// rethrows it, per the fatal-vs-recoverable split in §7 of the spec.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Cause)
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}
