// Package models defines the domain models for tools, workflows and workflow runs.
package models

import "time"

// DefaultWorkflowName is given to workflows created without a name.
const DefaultWorkflowName = "New Workflow"

// Workflow is a named, ordered sequence of steps, each invoking a tool with a command.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"               validate:"required"`
	Description string          `json:"description"`
	Steps       []*WorkflowStep `json:"steps"              validate:"dive"`
	Schedule    string          `json:"schedule,omitempty"` // Standard 5-field cron expression
	Sequence    int64           `json:"sequence"`           // Listing position, assigned on first save
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the workflow including its steps.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}

	c := *w
	c.Steps = make([]*WorkflowStep, len(w.Steps))

	for i, step := range w.Steps {
		s := *step
		c.Steps[i] = &s
	}

	return &c
}

// StepIndex returns the position of a step, or -1.
func (w *Workflow) StepIndex(stepID string) int {
	for i, step := range w.Steps {
		if step.ID == stepID {
			return i
		}
	}

	return -1
}
