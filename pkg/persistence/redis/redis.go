// Package redis provides Redis persistence for tools and workflows.
//
// Each entity kind is one hash keyed by entity id holding the JSON document.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "toolflow"

// Persistence implements the persistence layer on top of a Redis client.
type Persistence struct {
	client       redis.UniversalClient
	logger       *slog.Logger
	toolRepo     *ToolRepository
	workflowRepo *WorkflowRepository
}

// NewPersistence connects to the Redis server described by a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	options, err := redis.ParseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger = logger.With("module", "redis")
	logger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr, "db", options.DB)

	return NewPersistenceWithClient(client, logger, defaultPrefix), nil
}

// NewPersistenceWithClient wraps an existing client; keys are namespaced by prefix.
func NewPersistenceWithClient(client redis.UniversalClient, logger *slog.Logger, prefix string) *Persistence {
	return &Persistence{
		client:       client,
		logger:       logger,
		toolRepo:     &ToolRepository{store: hashStore{client: client, key: prefix + ":tools"}},
		workflowRepo: &WorkflowRepository{store: hashStore{client: client, key: prefix + ":workflows"}},
	}
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) ToolRepository() persistence.ToolRepository {
	return p.toolRepo
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

type hashStore struct {
	client redis.UniversalClient
	key    string
}

func (h hashStore) get(ctx context.Context, id string, v any) (bool, error) {
	data, err := h.client.HGet(ctx, h.key, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s: %w", id, err)
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return true, nil
}

func (h hashStore) all(ctx context.Context) ([]string, error) {
	values, err := h.client.HVals(ctx, h.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", h.key, err)
	}

	return values, nil
}

func (h hashStore) put(ctx context.Context, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	return h.client.HSet(ctx, h.key, id, data).Err()
}

func (h hashStore) remove(ctx context.Context, id string) (bool, error) {
	removed, err := h.client.HDel(ctx, h.key, id).Result()
	if err != nil {
		return false, err
	}

	return removed > 0, nil
}

// ToolRepository stores tools in a Redis hash.
type ToolRepository struct {
	store hashStore
}

func (r *ToolRepository) GetAll(ctx context.Context) ([]*models.Tool, error) {
	values, err := r.store.all(ctx)
	if err != nil {
		return nil, err
	}

	tools := make([]*models.Tool, 0, len(values))

	for _, value := range values {
		var tool models.Tool

		err := json.Unmarshal([]byte(value), &tool)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal tool: %w", err)
		}

		tools = append(tools, &tool)
	}

	sort.SliceStable(tools, func(i, j int) bool {
		return tools[i].Sequence < tools[j].Sequence
	})

	return tools, nil
}

func (r *ToolRepository) GetByID(ctx context.Context, id string) (*models.Tool, error) {
	var tool models.Tool

	found, err := r.store.get(ctx, id, &tool)
	if err != nil || !found {
		return nil, err
	}

	return &tool, nil
}

func (r *ToolRepository) Save(ctx context.Context, tool *models.Tool) error {
	if tool.CreatedAt.IsZero() {
		tool.CreatedAt = time.Now().UTC()
	}

	err := r.store.put(ctx, tool.ID, tool)
	if err != nil {
		return persistence.NewToolError("Save", tool.ID, err)
	}

	return nil
}

func (r *ToolRepository) Delete(ctx context.Context, id string) error {
	removed, err := r.store.remove(ctx, id)
	if err != nil {
		return persistence.NewToolError("Delete", id, err)
	}

	if !removed {
		return persistence.NewToolError("Delete", id, persistence.ErrToolNotFound)
	}

	return nil
}

// WorkflowRepository stores workflows in a Redis hash.
type WorkflowRepository struct {
	store hashStore
}

func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	values, err := r.store.all(ctx)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(values))

	for _, value := range values {
		var workflow models.Workflow

		err := json.Unmarshal([]byte(value), &workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
		}

		workflows = append(workflows, &workflow)
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].Sequence < workflows[j].Sequence
	})

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	found, err := r.store.get(ctx, id, &workflow)
	if err != nil || !found {
		return nil, err
	}

	return &workflow, nil
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	if workflow.UpdatedAt.IsZero() {
		workflow.UpdatedAt = now
	}

	err := r.store.put(ctx, workflow.ID, workflow)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	removed, err := r.store.remove(ctx, id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if !removed {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}
