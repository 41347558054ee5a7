package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence_StripsScheme(t *testing.T) {
	dir := t.TempDir()
	p := NewPersistence("file://" + dir)

	assert.Equal(t, dir, p.root)
	assert.NoError(t, p.HealthCheck(t.Context()))
}

func TestPersistence_HealthCheck_MissingRoot(t *testing.T) {
	p := NewPersistence(filepath.Join(t.TempDir(), "missing"))

	assert.ErrorIs(t, p.HealthCheck(t.Context()), os.ErrNotExist)
}

func TestWorkflowRepository_SaveAndGet(t *testing.T) {
	repo := NewPersistence(t.TempDir()).WorkflowRepository()

	workflow := &models.Workflow{
		ID:       "wf-1",
		Name:     "Recon",
		Sequence: 1,
		Steps: []*models.WorkflowStep{
			{ID: "s1", Tool: "subfinder", Command: "subfinder -d example.com"},
			{ID: "s2", Tool: "httpx", Command: "httpx -l hosts.txt"},
		},
	}

	require.NoError(t, repo.Save(t.Context(), workflow))
	assert.False(t, workflow.CreatedAt.IsZero())

	loaded, err := repo.GetByID(t.Context(), "wf-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "Recon", loaded.Name)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, "s2", loaded.Steps[1].ID)
}

func TestWorkflowRepository_GetByID_NotFound(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())

	workflow, err := repo.GetByID(t.Context(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, workflow)
}

func TestWorkflowRepository_GetAll_OrderedBySequence(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())

	for i, id := range []string{"c", "a", "b"} {
		require.NoError(t, repo.Save(t.Context(), &models.Workflow{ID: id, Name: id, Sequence: int64(3 - i)}))
	}

	workflows, err := repo.GetAll(t.Context())
	require.NoError(t, err)
	require.Len(t, workflows, 3)

	assert.Equal(t, "b", workflows[0].ID)
	assert.Equal(t, "a", workflows[1].ID)
	assert.Equal(t, "c", workflows[2].ID)
}

func TestWorkflowRepository_GetAll_Empty(t *testing.T) {
	workflows, err := NewWorkflowRepository(t.TempDir()).GetAll(t.Context())
	require.NoError(t, err)
	assert.Empty(t, workflows)
}

func TestWorkflowRepository_Delete(t *testing.T) {
	repo := NewWorkflowRepository(t.TempDir())
	require.NoError(t, repo.Save(t.Context(), &models.Workflow{ID: "wf", Name: "wf"}))

	require.NoError(t, repo.Delete(t.Context(), "wf"))

	err := repo.Delete(t.Context(), "wf")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestToolRepository_RoundTripAndOrder(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ToolRepository()

	first := &models.Tool{ID: "t1", Name: "nuclei", Repository: "projectdiscovery/nuclei", Sequence: 1, Status: models.ToolStatusReady}
	second := &models.Tool{ID: "t0", Name: "httpx", Repository: "projectdiscovery/httpx", Sequence: 2, Status: models.ToolStatusError, Error: "boom"}

	require.NoError(t, repo.Save(t.Context(), first))
	require.NoError(t, repo.Save(t.Context(), second))

	tools, err := repo.GetAll(t.Context())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "t1", tools[0].ID)
	assert.Equal(t, "t0", tools[1].ID)
	assert.Equal(t, "boom", tools[1].Error)
	assert.WithinDuration(t, time.Now(), tools[0].CreatedAt, time.Minute)
}

func TestToolRepository_Delete_NotFound(t *testing.T) {
	err := NewToolRepository(t.TempDir()).Delete(t.Context(), "nope")
	assert.True(t, persistence.IsToolNotFound(err))
}
