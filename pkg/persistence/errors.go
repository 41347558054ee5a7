// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrToolNotFound indicates a tool was not found by the given identifier.
	ErrToolNotFound = errors.New("tool not found")

	// ErrUnsupportedProvider indicates a database URL names an unknown backend.
	ErrUnsupportedProvider = errors.New("unsupported persistence provider")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string // Workflow ID if applicable
	Err        error  // Underlying error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// ToolError wraps tool-related errors with additional context.
type ToolError struct {
	Op     string // Operation being performed
	ToolID string // Tool ID
	Err    error  // Underlying error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s operation failed for tool %s: %v", e.Op, e.ToolID, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func (e *ToolError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewToolError creates a new tool error with context.
func NewToolError(op, toolID string, err error) *ToolError {
	return &ToolError{
		Op:     op,
		ToolID: toolID,
		Err:    err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsToolNotFound checks if an error indicates a tool was not found.
func IsToolNotFound(err error) bool {
	return errors.Is(err, ErrToolNotFound)
}
