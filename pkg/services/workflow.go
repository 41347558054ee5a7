package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukex/toolflow/pkg/eventbus"
	"github.com/dukex/toolflow/pkg/events"
	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/xeipuuv/gojsonschema"
)

// WorkflowStore owns workflow definitions and their open edit sessions.
// Stored workflows keep their listing position across saves.
type WorkflowStore struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	validate    *validator.Validate
	schema      *gojsonschema.Schema

	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	order     []string
	drafts    map[string]*models.Workflow
	sequence  int64
}

// NewWorkflowStore creates a workflow store backed by persistence. The publisher may be nil.
func NewWorkflowStore(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *WorkflowStore {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(workflowDocumentSchema))
	if err != nil {
		panic(fmt.Errorf("invalid workflow document schema: %w", err))
	}

	return &WorkflowStore{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "workflow_store"),
		validate:    newValidator(),
		schema:      schema,
		workflows:   make(map[string]*models.Workflow),
		drafts:      make(map[string]*models.Workflow),
	}
}

// Init loads persisted workflows in listing order.
func (s *WorkflowStore) Init(ctx context.Context) error {
	stored, err := s.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows = make(map[string]*models.Workflow, len(stored))
	s.order = make([]string, 0, len(stored))
	s.drafts = make(map[string]*models.Workflow)
	s.sequence = 0

	for _, workflow := range stored {
		s.workflows[workflow.ID] = workflow
		s.order = append(s.order, workflow.ID)
		s.sequence = max(s.sequence, workflow.Sequence)
	}

	s.logger.InfoContext(ctx, "Workflows loaded", "count", len(s.order))

	return nil
}

// Create opens an edit session on a new, unsaved workflow.
func (s *WorkflowStore) Create() *models.Workflow {
	workflow := &models.Workflow{
		ID:    uuid.New().String(),
		Name:  models.DefaultWorkflowName,
		Steps: make([]*models.WorkflowStep, 0),
	}

	s.mu.Lock()
	s.drafts[workflow.ID] = workflow
	s.mu.Unlock()

	return workflow.Clone()
}

// Edit opens an edit session on a stored workflow and returns the edited copy.
// An already open session is returned as is.
func (s *WorkflowStore) Edit(id string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, err := s.draftLocked("edit_workflow", id)
	if err != nil {
		return nil, err
	}

	return draft.Clone(), nil
}

// Draft returns the edited copy of a workflow without opening a session.
func (s *WorkflowStore) Draft(id string) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, ok := s.drafts[id]
	if !ok {
		return nil, newError("get_draft", "workflow_not_found", "no edit session for workflow: "+id, ErrWorkflowNotFound)
	}

	return draft.Clone(), nil
}

// Discard closes the edit session of a workflow, dropping unsaved changes.
// A workflow created but never saved disappears with its session.
func (s *WorkflowStore) Discard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drafts[id]; !ok {
		return newError("discard_draft", "workflow_not_found", "no edit session for workflow: "+id, ErrWorkflowNotFound)
	}

	delete(s.drafts, id)

	return nil
}

// AddStep appends a step to the edited copy of a workflow.
func (s *WorkflowStore) AddStep(id, tool, command string) (*models.WorkflowStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, err := s.draftLocked("add_step", id)
	if err != nil {
		return nil, err
	}

	step := &models.WorkflowStep{
		ID:      uuid.New().String(),
		Tool:    tool,
		Command: command,
	}
	draft.Steps = append(draft.Steps, step)

	c := *step

	return &c, nil
}

// RemoveStep deletes a step from the edited copy of a workflow, keeping the order of the others.
func (s *WorkflowStore) RemoveStep(id, stepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, err := s.draftLocked("remove_step", id)
	if err != nil {
		return err
	}

	index := draft.StepIndex(stepID)
	if index < 0 {
		return newError("remove_step", "step_not_found", "step not found: "+stepID, ErrStepNotFound)
	}

	draft.Steps = append(draft.Steps[:index], draft.Steps[index+1:]...)

	return nil
}

// UpdateStep changes one field of a step in the edited copy of a workflow.
func (s *WorkflowStore) UpdateStep(id, stepID string, field models.StepField, value string) (*models.WorkflowStep, error) {
	if field != models.StepFieldTool && field != models.StepFieldCommand {
		return nil, newError("update_step", "invalid_field", fmt.Sprintf("unknown step field %q", field), ErrInvalidField)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	draft, err := s.draftLocked("update_step", id)
	if err != nil {
		return nil, err
	}

	index := draft.StepIndex(stepID)
	if index < 0 {
		return nil, newError("update_step", "step_not_found", "step not found: "+stepID, ErrStepNotFound)
	}

	step := draft.Steps[index]

	switch field {
	case models.StepFieldTool:
		step.Tool = value
	case models.StepFieldCommand:
		step.Command = value
	}

	c := *step

	return &c, nil
}

// SaveDraft saves the edited copy of a workflow.
func (s *WorkflowStore) SaveDraft(ctx context.Context, id string) (*models.Workflow, error) {
	draft, err := s.Draft(id)
	if err != nil {
		return nil, err
	}

	return s.Save(ctx, draft)
}

// Save validates and upserts a workflow. An existing workflow is replaced in place and keeps its
// listing position; a new one is appended. Any open edit session for it is closed.
func (s *WorkflowStore) Save(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, newError("save_workflow", "invalid_request", "workflow cannot be nil", ErrWorkflowNil)
	}

	candidate := &models.Workflow{
		ID:          workflow.ID,
		Name:        strings.TrimSpace(workflow.Name),
		Description: workflow.Description,
		Schedule:    strings.TrimSpace(workflow.Schedule),
		Steps:       make([]*models.WorkflowStep, 0, len(workflow.Steps)),
	}

	for _, step := range workflow.Steps {
		if step == nil {
			continue
		}

		c := *step
		if c.ID == "" {
			c.ID = uuid.New().String()
		}

		candidate.Steps = append(candidate.Steps, &c)
	}

	if err := s.validateWorkflow(candidate); err != nil {
		return nil, err
	}

	if candidate.ID == "" {
		candidate.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	candidate.UpdatedAt = now

	existing, created := s.workflows[candidate.ID], false
	if existing != nil {
		candidate.Sequence = existing.Sequence
		candidate.CreatedAt = existing.CreatedAt
	} else {
		created = true
		candidate.Sequence = s.sequence + 1
		candidate.CreatedAt = now
	}

	if err := s.persistence.WorkflowRepository().Save(ctx, candidate.Clone()); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	s.workflows[candidate.ID] = candidate

	if created {
		s.sequence = candidate.Sequence
		s.order = append(s.order, candidate.ID)
	}

	delete(s.drafts, candidate.ID)

	s.logger.InfoContext(ctx, "Workflow saved", "workflow_id", candidate.ID, "steps", len(candidate.Steps), "created", created)
	notify(ctx, s.publisher, s.logger, candidate.ID, events.WorkflowSaved{
		BaseEvent: events.NewBaseEvent(events.WorkflowSavedEvent),
		Workflow:  candidate.Clone(),
		Created:   created,
	})

	return candidate.Clone(), nil
}

// Remove deletes a stored workflow and closes its edit session.
// Removing a workflow that was created but never saved only discards its session.
func (s *WorkflowStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, stored := s.workflows[id]
	_, drafted := s.drafts[id]

	if !stored {
		if drafted {
			delete(s.drafts, id)

			return nil
		}

		return newError("remove_workflow", "workflow_not_found", "workflow not found: "+id, ErrWorkflowNotFound)
	}

	err := s.persistence.WorkflowRepository().Delete(ctx, id)
	if err != nil && !errors.Is(err, persistence.ErrWorkflowNotFound) {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	delete(s.workflows, id)
	delete(s.drafts, id)

	for i, workflowID := range s.order {
		if workflowID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)

			break
		}
	}

	s.logger.InfoContext(ctx, "Workflow removed", "workflow_id", id)
	notify(ctx, s.publisher, s.logger, id, events.WorkflowRemoved{
		BaseEvent:  events.NewBaseEvent(events.WorkflowRemovedEvent),
		WorkflowID: id,
	})

	return nil
}

// Get returns a copy of a stored workflow.
func (s *WorkflowStore) Get(id string) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflow, ok := s.workflows[id]
	if !ok {
		return nil, newError("get_workflow", "workflow_not_found", "workflow not found: "+id, ErrWorkflowNotFound)
	}

	return workflow.Clone(), nil
}

// List returns copies of all stored workflows in listing order.
func (s *WorkflowStore) List() []*models.Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(s.order))
	for _, id := range s.order {
		workflows = append(workflows, s.workflows[id].Clone())
	}

	return workflows
}

// Import validates a JSON workflow document and saves it.
func (s *WorkflowStore) Import(ctx context.Context, document []byte) (*models.Workflow, error) {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, newError("import_workflow", "invalid_document", err.Error(), ErrInvalidDocument)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}

		return nil, newError("import_workflow", "invalid_document", strings.Join(messages, "; "), ErrInvalidDocument)
	}

	var workflow models.Workflow
	if err := json.Unmarshal(document, &workflow); err != nil {
		return nil, newError("import_workflow", "invalid_document", err.Error(), ErrInvalidDocument)
	}

	return s.Save(ctx, &workflow)
}

// Export returns the JSON document of a stored workflow.
func (s *WorkflowStore) Export(id string) ([]byte, error) {
	workflow, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	document := struct {
		ID          string                 `json:"id"`
		Name        string                 `json:"name"`
		Description string                 `json:"description,omitempty"`
		Schedule    string                 `json:"schedule,omitempty"`
		Steps       []*models.WorkflowStep `json:"steps"`
	}{
		ID:          workflow.ID,
		Name:        workflow.Name,
		Description: workflow.Description,
		Schedule:    workflow.Schedule,
		Steps:       workflow.Steps,
	}

	return json.MarshalIndent(document, "", "  ")
}

// draftLocked returns the open edit session of a workflow, opening one from the stored workflow
// when needed. Callers hold s.mu.
func (s *WorkflowStore) draftLocked(op, id string) (*models.Workflow, error) {
	if draft, ok := s.drafts[id]; ok {
		return draft, nil
	}

	stored, ok := s.workflows[id]
	if !ok {
		return nil, newError(op, "workflow_not_found", "workflow not found: "+id, ErrWorkflowNotFound)
	}

	draft := stored.Clone()
	s.drafts[id] = draft

	return draft, nil
}

func (s *WorkflowStore) validateWorkflow(workflow *models.Workflow) error {
	if workflow.Name == "" {
		return newError("save_workflow", "name_required", "workflow name is required", ErrWorkflowNameRequired)
	}

	if workflow.Schedule != "" {
		if _, err := cron.ParseStandard(workflow.Schedule); err != nil {
			return newError("save_workflow", "invalid_schedule",
				fmt.Sprintf("invalid cron expression %q: %v", workflow.Schedule, err), ErrInvalidSchedule)
		}
	}

	if err := s.validate.Struct(workflow); err != nil {
		return newError("save_workflow", "invalid_request", err.Error(), ErrInvalidRequest)
	}

	return nil
}
