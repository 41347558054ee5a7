package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/dukex/toolflow/pkg/eventbus"
	"github.com/dukex/toolflow/pkg/events"
	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// InterruptedInstallDetail is recorded on tools found installing when the registry is loaded.
const InterruptedInstallDetail = "install interrupted"

// owner/repo, optional sub path and optional @version.
var repositoryPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+(/[A-Za-z0-9_.-]+)*(@[A-Za-z0-9_.+-]+)?$`)

// StatusChange describes a tool status transition.
type StatusChange struct {
	To          models.ToolStatus
	Error       string // Failure detail, kept only when To is error
	InstallPath string // Set on the tool when not empty
}

// ToolRegistry owns the set of registered tools and their install status.
type ToolRegistry struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	validate    *validator.Validate

	mu       sync.RWMutex
	tools    map[string]*models.Tool
	order    []string
	sequence int64
}

// NewToolRegistry creates a registry backed by persistence. The publisher may be nil.
func NewToolRegistry(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *ToolRegistry {
	return &ToolRegistry{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "tool_registry"),
		validate:    newValidator(),
		tools:       make(map[string]*models.Tool),
	}
}

// Init loads persisted tools in registration order. Tools left installing by a previous
// process are moved to error.
func (r *ToolRegistry) Init(ctx context.Context) error {
	stored, err := r.persistence.ToolRepository().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tools: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools = make(map[string]*models.Tool, len(stored))
	r.order = make([]string, 0, len(stored))
	r.sequence = 0

	for _, tool := range stored {
		if tool.Status == models.ToolStatusInstalling {
			tool.Status = models.ToolStatusError
			tool.Error = InterruptedInstallDetail
			tool.UpdatedAt = time.Now().UTC()

			if err := r.persistence.ToolRepository().Save(ctx, tool); err != nil {
				return fmt.Errorf("failed to restore tool %s: %w", tool.ID, err)
			}

			r.logger.WarnContext(ctx, "Tool install was interrupted", "tool_id", tool.ID, "repository", tool.Repository)
		}

		r.tools[tool.ID] = tool
		r.order = append(r.order, tool.ID)
		r.sequence = max(r.sequence, tool.Sequence)
	}

	r.logger.InfoContext(ctx, "Tools loaded", "count", len(r.order))

	return nil
}

// Register adds a tool in the pending state.
func (r *ToolRegistry) Register(ctx context.Context, tool *models.Tool) (*models.Tool, error) {
	if tool == nil {
		return nil, newError("register_tool", "invalid_request", "tool cannot be nil", ErrInvalidRequest)
	}

	candidate := tool.Clone()
	candidate.Repository = models.NormalizeRepository(candidate.Repository)

	if candidate.InstallMethod == "" {
		candidate.InstallMethod = models.InstallMethodGit
	}

	if candidate.Name == "" {
		candidate.Name = models.ToolNameFromRepository(candidate.Repository)
	}

	if err := r.validate.Struct(candidate); err != nil {
		return nil, newError("register_tool", "invalid_request", err.Error(), ErrInvalidRequest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Names resolve step references, so they must be as unique as repositories.
	for _, existing := range r.tools {
		if existing.Repository == candidate.Repository {
			return nil, newError("register_tool", "duplicate_reference",
				fmt.Sprintf("tool %s is already registered", candidate.Repository), ErrDuplicateReference)
		}

		if existing.Name == candidate.Name {
			return nil, newError("register_tool", "duplicate_name",
				fmt.Sprintf("tool name %s is already used by %s", candidate.Name, existing.Repository), ErrDuplicateReference)
		}
	}

	now := time.Now().UTC()
	candidate.ID = uuid.New().String()
	candidate.Status = models.ToolStatusPending
	candidate.Error = ""
	candidate.InstallPath = ""
	candidate.Sequence = r.sequence + 1
	candidate.CreatedAt = now
	candidate.UpdatedAt = now

	if err := r.persistence.ToolRepository().Save(ctx, candidate); err != nil {
		return nil, fmt.Errorf("failed to save tool: %w", err)
	}

	r.sequence = candidate.Sequence
	r.tools[candidate.ID] = candidate
	r.order = append(r.order, candidate.ID)

	r.logger.InfoContext(ctx, "Tool registered", "tool_id", candidate.ID, "repository", candidate.Repository)
	notify(ctx, r.publisher, r.logger, candidate.ID, events.ToolRegistered{
		BaseEvent: events.NewBaseEvent(events.ToolRegisteredEvent),
		Tool:      candidate.Clone(),
	})

	return candidate.Clone(), nil
}

// Remove deletes a tool. Tools with an install in flight cannot be removed.
func (r *ToolRegistry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tool, ok := r.tools[id]
	if !ok {
		return newError("remove_tool", "tool_not_found", "tool not found: "+id, ErrToolNotFound)
	}

	if tool.Status == models.ToolStatusInstalling {
		return newError("remove_tool", "install_in_progress", "tool is being installed", ErrInvalidState)
	}

	err := r.persistence.ToolRepository().Delete(ctx, id)
	if err != nil && !errors.Is(err, persistence.ErrToolNotFound) {
		return fmt.Errorf("failed to delete tool: %w", err)
	}

	delete(r.tools, id)

	for i, toolID := range r.order {
		if toolID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)

			break
		}
	}

	r.logger.InfoContext(ctx, "Tool removed", "tool_id", id)
	notify(ctx, r.publisher, r.logger, id, events.ToolRemoved{
		BaseEvent: events.NewBaseEvent(events.ToolRemovedEvent),
		ToolID:    id,
	})

	return nil
}

// Get returns a copy of the tool with the given id.
func (r *ToolRegistry) Get(id string) (*models.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[id]
	if !ok {
		return nil, newError("get_tool", "tool_not_found", "tool not found: "+id, ErrToolNotFound)
	}

	return tool.Clone(), nil
}

// List returns copies of all tools in registration order.
func (r *ToolRegistry) List() []*models.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*models.Tool, 0, len(r.order))
	for _, id := range r.order {
		tools = append(tools, r.tools[id].Clone())
	}

	return tools
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// Resolve finds a tool by id, then by name, then by repository.
func (r *ToolRegistry) Resolve(ref string) (*models.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tool, ok := r.tools[ref]; ok {
		return tool.Clone(), true
	}

	for _, id := range r.order {
		if r.tools[id].Name == ref {
			return r.tools[id].Clone(), true
		}
	}

	repository := models.NormalizeRepository(ref)

	for _, id := range r.order {
		if r.tools[id].Repository == repository {
			return r.tools[id].Clone(), true
		}
	}

	return nil, false
}

// Reset moves a failed tool back to pending.
func (r *ToolRegistry) Reset(ctx context.Context, id string) (*models.Tool, error) {
	return r.Transition(ctx, id, StatusChange{To: models.ToolStatusPending})
}

// Transition applies a status change validated against the legal transition table.
// The in-memory status is authoritative: a failed write-through is logged, not returned.
func (r *ToolRegistry) Transition(ctx context.Context, id string, change StatusChange) (*models.Tool, error) {
	r.mu.Lock()

	tool, ok := r.tools[id]
	if !ok {
		r.mu.Unlock()

		return nil, newError("transition_tool", "tool_not_found", "tool not found: "+id, ErrToolNotFound)
	}

	from := tool.Status
	if !models.CanTransition(from, change.To) {
		r.mu.Unlock()

		return nil, newError("transition_tool", "invalid_state",
			fmt.Sprintf("cannot move tool from %s to %s", from, change.To), ErrInvalidState)
	}

	tool.Status = change.To
	tool.Error = ""
	tool.UpdatedAt = time.Now().UTC()

	if change.To == models.ToolStatusError {
		tool.Error = change.Error
	}

	if change.InstallPath != "" {
		tool.InstallPath = change.InstallPath
	}

	updated := tool.Clone()

	if err := r.persistence.ToolRepository().Save(ctx, updated.Clone()); err != nil {
		r.logger.ErrorContext(ctx, "Failed to persist tool status", "tool_id", id, "status", change.To, "error", err)
	}

	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Tool status changed", "tool_id", id, "from", from, "to", change.To)
	notify(ctx, r.publisher, r.logger, id, events.ToolStatusChanged{
		BaseEvent: events.NewBaseEvent(events.ToolStatusChangedEvent),
		ToolID:    id,
		From:      from,
		To:        change.To,
		Error:     updated.Error,
	})

	return updated, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("repository", func(fl validator.FieldLevel) bool {
		return repositoryPattern.MatchString(fl.Field().String())
	})

	return v
}
