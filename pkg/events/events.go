// Package events defines change notifications emitted by the engine.
package events

import (
	"time"

	"github.com/dukex/toolflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every engine notification.
const Topic = "toolflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Tool lifecycle events.
	ToolRegisteredEvent    EventType = "tool.registered"
	ToolRemovedEvent       EventType = "tool.removed"
	ToolStatusChangedEvent EventType = "tool.status.changed"

	// Workflow definition events.
	WorkflowSavedEvent   EventType = "workflow.saved"
	WorkflowRemovedEvent EventType = "workflow.removed"

	// Workflow run events.
	WorkflowRunStartedEvent       EventType = "workflow.run.started"
	WorkflowRunStepCompletedEvent EventType = "workflow.run.step.completed"
	WorkflowRunCompletedEvent     EventType = "workflow.run.completed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a new event of the given type.
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

type ToolRegistered struct {
	BaseEvent

	Tool *models.Tool `json:"tool"`
}

func (e ToolRegistered) GetType() EventType {
	return ToolRegisteredEvent
}

type ToolRemoved struct {
	BaseEvent

	ToolID string `json:"tool_id"`
}

func (e ToolRemoved) GetType() EventType {
	return ToolRemovedEvent
}

// ToolStatusChanged is emitted after every completed status transition.
type ToolStatusChanged struct {
	BaseEvent

	ToolID string            `json:"tool_id"`
	From   models.ToolStatus `json:"from"`
	To     models.ToolStatus `json:"to"`
	Error  string            `json:"error,omitempty"`
}

func (e ToolStatusChanged) GetType() EventType {
	return ToolStatusChangedEvent
}

type WorkflowSaved struct {
	BaseEvent

	Workflow *models.Workflow `json:"workflow"`
	Created  bool             `json:"created"`
}

func (e WorkflowSaved) GetType() EventType {
	return WorkflowSavedEvent
}

type WorkflowRemoved struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
}

func (e WorkflowRemoved) GetType() EventType {
	return WorkflowRemovedEvent
}

type WorkflowRunStarted struct {
	BaseEvent

	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	Steps      int    `json:"steps"`
}

func (e WorkflowRunStarted) GetType() EventType {
	return WorkflowRunStartedEvent
}

type WorkflowRunStepCompleted struct {
	BaseEvent

	RunID      string             `json:"run_id"`
	WorkflowID string             `json:"workflow_id"`
	Position   int                `json:"position"`
	Outcome    models.StepOutcome `json:"outcome"`
}

func (e WorkflowRunStepCompleted) GetType() EventType {
	return WorkflowRunStepCompletedEvent
}

type WorkflowRunCompleted struct {
	BaseEvent

	Report *models.WorkflowRunReport `json:"report"`
}

func (e WorkflowRunCompleted) GetType() EventType {
	return WorkflowRunCompletedEvent
}
