package models

import "time"

// RunStatus is the overall status of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// StepStatus is the outcome of a single attempted step.
type StepStatus string

const (
	StepStatusSucceeded  StepStatus = "succeeded"
	StepStatusFailed     StepStatus = "failed"
	StepStatusUnresolved StepStatus = "unresolved"
	StepStatusCancelled  StepStatus = "cancelled"
)

// StepOutcome captures the result of a step that the runner attempted.
type StepOutcome struct {
	StepID     string     `json:"step_id"`
	Tool       string     `json:"tool"`
	ToolID     string     `json:"tool_id,omitempty"`
	Command    string     `json:"command"`
	Status     StepStatus `json:"status"`
	ExitCode   int        `json:"exit_code"`
	Stdout     string     `json:"stdout,omitempty"`
	Stderr     string     `json:"stderr,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Succeeded reports whether the step completed with a zero exit status.
func (o StepOutcome) Succeeded() bool {
	return o.Status == StepStatusSucceeded
}

// WorkflowRunReport lists the outcomes of the steps actually attempted, in order.
type WorkflowRunReport struct {
	ID         string        `json:"id"`
	WorkflowID string        `json:"workflow_id"`
	Status     RunStatus     `json:"status"`
	Steps      []StepOutcome `json:"steps"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Clone returns a copy safe to hand out while the run is still progressing.
func (r *WorkflowRunReport) Clone() *WorkflowRunReport {
	if r == nil {
		return nil
	}

	c := *r
	c.Steps = append([]StepOutcome(nil), r.Steps...)

	if r.FinishedAt != nil {
		finished := *r.FinishedAt
		c.FinishedAt = &finished
	}

	return &c
}

// Done reports whether the run reached a terminal status.
func (r *WorkflowRunReport) Done() bool {
	return r.Status != RunStatusRunning
}
