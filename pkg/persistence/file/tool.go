package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/persistence"
)

const toolsKind = "tools"

// ToolRepository handles tool-related file operations.
type ToolRepository struct {
	root string
}

// NewToolRepository creates a new tool repository.
func NewToolRepository(root string) *ToolRepository {
	return &ToolRepository{root: root}
}

// GetAll returns all tools in registration order.
func (tr *ToolRepository) GetAll(ctx context.Context) ([]*models.Tool, error) {
	ids, err := documentIDs(tr.root, toolsKind)
	if err != nil {
		return nil, err
	}

	tools := make([]*models.Tool, 0, len(ids))

	for _, id := range ids {
		tool, err := tr.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load tool %s: %w", id, err)
		}

		if tool != nil {
			tools = append(tools, tool)
		}
	}

	sort.SliceStable(tools, func(i, j int) bool {
		if tools[i].Sequence == tools[j].Sequence {
			return tools[i].CreatedAt.Before(tools[j].CreatedAt)
		}

		return tools[i].Sequence < tools[j].Sequence
	})

	return tools, nil
}

func (tr *ToolRepository) GetByID(_ context.Context, id string) (*models.Tool, error) {
	var tool models.Tool

	found, err := readDocument(tr.root, toolsKind, id, &tool)
	if err != nil || !found {
		return nil, err
	}

	return &tool, nil
}

func (tr *ToolRepository) Save(_ context.Context, tool *models.Tool) error {
	if tool.CreatedAt.IsZero() {
		tool.CreatedAt = time.Now().UTC()
	}

	return writeDocument(tr.root, toolsKind, tool.ID, tool)
}

func (tr *ToolRepository) Delete(_ context.Context, id string) error {
	found, err := removeDocument(tr.root, toolsKind, id)
	if err != nil {
		return err
	}

	if !found {
		return persistence.NewToolError("Delete", id, persistence.ErrToolNotFound)
	}

	return nil
}
