// Package web provides the REST API over the tool and workflow engine.
package web

import "github.com/dukex/toolflow/pkg/models"

// RegisterToolRequest represents the request body for registering a tool.
type RegisterToolRequest struct {
	Repository     string `json:"repository"                validate:"required"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	InstallMethod  string `json:"install_method"            validate:"omitempty,oneof=git go"`
	InstallCommand string `json:"install_command,omitempty"`
}

// StepRequest represents one step of a workflow request body.
type StepRequest struct {
	ID      string `json:"id,omitempty"`
	Tool    string `json:"tool"         validate:"required"`
	Command string `json:"command"`
}

// SaveWorkflowRequest represents the request body for creating or replacing a workflow.
type SaveWorkflowRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Schedule    string        `json:"schedule,omitempty"`
	Steps       []StepRequest `json:"steps"              validate:"dive"`
}

// AddStepRequest represents the request body for appending a step.
type AddStepRequest struct {
	Tool    string `json:"tool"    validate:"required"`
	Command string `json:"command"`
}

// UpdateStepRequest represents the request body for changing one step field.
type UpdateStepRequest struct {
	Field string `json:"field" validate:"required"`
	Value string `json:"value"`
}

// RunResponse is returned when a run is accepted.
type RunResponse struct {
	RunID  string                    `json:"run_id"`
	Report *models.WorkflowRunReport `json:"report"`
}

func (r SaveWorkflowRequest) toWorkflow(id string) *models.Workflow {
	workflow := &models.Workflow{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Schedule:    r.Schedule,
		Steps:       make([]*models.WorkflowStep, 0, len(r.Steps)),
	}

	for _, step := range r.Steps {
		workflow.Steps = append(workflow.Steps, &models.WorkflowStep{
			ID:      step.ID,
			Tool:    step.Tool,
			Command: step.Command,
		})
	}

	return workflow
}
