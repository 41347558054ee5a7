// Package services provides the tool lifecycle and workflow orchestration engine.
package services

import (
	"errors"
	"fmt"
)

// Validation errors are returned synchronously and never mutate state.
var (
	// ErrDuplicateReference indicates a tool with the same repository is already registered.
	ErrDuplicateReference = errors.New("duplicate source reference")

	// ErrNotFound indicates an unknown tool, workflow, step or run.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates the entity is not in a state that allows the operation.
	ErrInvalidState = errors.New("invalid state")

	// ErrEmptyWorkflow indicates a run was requested for a workflow without steps.
	ErrEmptyWorkflow = errors.New("workflow has no steps")

	// Input validation errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidField         = errors.New("invalid step field")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrInvalidSchedule      = errors.New("invalid schedule")
	ErrInvalidDocument      = errors.New("invalid workflow document")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
)

var (
	ErrToolNotFound     = fmt.Errorf("tool %w", ErrNotFound)
	ErrWorkflowNotFound = fmt.Errorf("workflow %w", ErrNotFound)
	ErrStepNotFound     = fmt.Errorf("step %w", ErrNotFound)
	ErrRunNotFound      = fmt.Errorf("run %w", ErrNotFound)
)

// Execution errors are recorded in tool status and run reports rather than returned to the
// caller that started the work.
var (
	// ErrUnresolvedTool indicates a step references a tool that does not exist or is not ready.
	ErrUnresolvedTool = errors.New("unresolved tool")

	// ErrExecutionFailure indicates the executor could not run a command or it exited non-zero.
	ErrExecutionFailure = errors.New("execution failure")

	// ErrCancelled indicates the install or run was cancelled on request.
	ErrCancelled = errors.New("cancelled")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidField) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrInvalidDocument) ||
		errors.Is(err, ErrWorkflowNil)
}

// IsConflictError checks if an error conflicts with current state and should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDuplicateReference) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrEmptyWorkflow)
}

// IsNotFound checks if an error indicates an unknown entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ErrorCode returns the API code attached to err, if any.
func ErrorCode(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code
	}

	return ""
}
