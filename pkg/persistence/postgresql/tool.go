package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/persistence"
)

const toolColumns = `
	id
  , name
  , repository
  , description
  , install_method
  , install_command
  , install_path
  , status
  , error
  , sequence
  , created_at
  , updated_at
`

// ToolRepository handles tool-related database operations.
type ToolRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewToolRepository creates a new tool repository.
func NewToolRepository(db *sql.DB, logger *slog.Logger) *ToolRepository {
	return &ToolRepository{db: db, logger: logger}
}

// GetAll returns all tools in registration order.
func (r *ToolRepository) GetAll(ctx context.Context) ([]*models.Tool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+toolColumns+` FROM tools ORDER BY sequence, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tools: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	tools := make([]*models.Tool, 0)

	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool: %w", err)
		}

		tools = append(tools, tool)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating tools: %w", err)
	}

	return tools, nil
}

func (r *ToolRepository) GetByID(ctx context.Context, id string) (*models.Tool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tools WHERE id = $1`, id)

	tool, err := scanTool(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan tool: %w", err)
	}

	return tool, nil
}

// Save upserts a tool.
func (r *ToolRepository) Save(ctx context.Context, tool *models.Tool) error {
	if tool.CreatedAt.IsZero() {
		tool.CreatedAt = time.Now().UTC()
	}

	if tool.UpdatedAt.IsZero() {
		tool.UpdatedAt = tool.CreatedAt
	}

	query := `
		INSERT INTO tools (` + toolColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			repository = EXCLUDED.repository,
			description = EXCLUDED.description,
			install_method = EXCLUDED.install_method,
			install_command = EXCLUDED.install_command,
			install_path = EXCLUDED.install_path,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		tool.ID,
		tool.Name,
		tool.Repository,
		tool.Description,
		string(tool.InstallMethod),
		tool.InstallCommand,
		tool.InstallPath,
		string(tool.Status),
		tool.Error,
		tool.Sequence,
		tool.CreatedAt,
		tool.UpdatedAt,
	)
	if err != nil {
		return persistence.NewToolError("Save", tool.ID, err)
	}

	return nil
}

func (r *ToolRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tools WHERE id = $1`, id)
	if err != nil {
		return persistence.NewToolError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewToolError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewToolError("Delete", id, persistence.ErrToolNotFound)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTool(row scanner) (*models.Tool, error) {
	var (
		tool          models.Tool
		installMethod string
		status        string
	)

	err := row.Scan(
		&tool.ID,
		&tool.Name,
		&tool.Repository,
		&tool.Description,
		&installMethod,
		&tool.InstallCommand,
		&tool.InstallPath,
		&status,
		&tool.Error,
		&tool.Sequence,
		&tool.CreatedAt,
		&tool.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tool.InstallMethod = models.InstallMethod(installMethod)
	tool.Status = models.ToolStatus(status)

	return &tool, nil
}
