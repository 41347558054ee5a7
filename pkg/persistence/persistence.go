// Package persistence provides the storage abstraction for tools and workflows.
package persistence

import (
	"context"

	"github.com/dukex/toolflow/pkg/models"
)

// Persistence groups the repositories of a storage backend.
type Persistence interface {
	ToolRepository() ToolRepository
	WorkflowRepository() WorkflowRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ToolRepository stores tools. GetByID returns nil, nil for unknown ids.
type ToolRepository interface {
	// GetAll returns every tool ordered by Sequence.
	GetAll(ctx context.Context) ([]*models.Tool, error)
	GetByID(ctx context.Context, id string) (*models.Tool, error)
	Save(ctx context.Context, tool *models.Tool) error
	Delete(ctx context.Context, id string) error
}

// WorkflowRepository stores workflow definitions. GetByID returns nil, nil for unknown ids.
type WorkflowRepository interface {
	// GetAll returns every workflow ordered by Sequence.
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}
