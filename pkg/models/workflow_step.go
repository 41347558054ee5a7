package models

// StepField names an editable field of a workflow step.
type StepField string

const (
	StepFieldTool    StepField = "tool"
	StepFieldCommand StepField = "command"
)

// WorkflowStep invokes a tool with an opaque command. Its position is its index in the workflow.
type WorkflowStep struct {
	ID      string `json:"id"      validate:"required"`
	Tool    string `json:"tool"`    // Tool ID, name or repository
	Command string `json:"command"`
}
