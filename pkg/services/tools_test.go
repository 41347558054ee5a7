package services

import (
	"errors"
	"testing"

	"github.com/dukex/toolflow/pkg/events"
	"github.com/dukex/toolflow/pkg/mocks"
	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestToolRegistry_Register(t *testing.T) {
	registry := NewToolRegistry(file.NewPersistence(t.TempDir()), nil, testLogger())

	tool, err := registry.Register(t.Context(), &models.Tool{
		Repository:    "https://github.com/projectdiscovery/nuclei.git",
		Description:   "Vulnerability scanner",
		InstallMethod: models.InstallMethodGo,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, tool.ID)
	assert.Equal(t, "projectdiscovery/nuclei", tool.Repository)
	assert.Equal(t, "nuclei", tool.Name)
	assert.Equal(t, models.ToolStatusPending, tool.Status)
	assert.Empty(t, tool.Error)
	assert.False(t, tool.CreatedAt.IsZero())
	assert.Equal(t, 1, registry.Len())
}

func TestToolRegistry_Register_ForcesPending(t *testing.T) {
	registry := NewToolRegistry(file.NewPersistence(t.TempDir()), nil, testLogger())

	tool, err := registry.Register(t.Context(), &models.Tool{
		Name:       "amass",
		Repository: "owasp-amass/amass",
		Status:     models.ToolStatusReady,
		Error:      "stale",
	})
	require.NoError(t, err)

	assert.Equal(t, "amass", tool.Name)
	assert.Equal(t, models.ToolStatusPending, tool.Status)
	assert.Equal(t, models.InstallMethodGit, tool.InstallMethod)
	assert.Empty(t, tool.Error)
}

func TestToolRegistry_Register_Duplicate(t *testing.T) {
	registry := NewToolRegistry(file.NewPersistence(t.TempDir()), nil, testLogger())

	_, err := registry.Register(t.Context(), &models.Tool{Repository: "projectdiscovery/httpx"})
	require.NoError(t, err)

	_, err = registry.Register(t.Context(), &models.Tool{Repository: "github.com/projectdiscovery/httpx/"})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrDuplicateReference)
	assert.True(t, IsConflictError(err))
	assert.Equal(t, "duplicate_reference", ErrorCode(err))
	assert.Equal(t, 1, registry.Len())
}

func TestToolRegistry_Register_Invalid(t *testing.T) {
	registry := NewToolRegistry(file.NewPersistence(t.TempDir()), nil, testLogger())

	tests := []struct {
		name string
		tool *models.Tool
	}{
		{name: "nil tool", tool: nil},
		{name: "missing repository", tool: &models.Tool{Name: "x"}},
		{name: "no owner", tool: &models.Tool{Repository: "nuclei"}},
		{name: "shell characters", tool: &models.Tool{Repository: "owner/repo; rm -rf /"}},
		{name: "unknown method", tool: &models.Tool{Repository: "owner/repo", InstallMethod: "apt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.Register(t.Context(), tt.tool)

			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, 0, registry.Len())
		})
	}
}

func TestToolRegistry_Register_PersistenceFailure(t *testing.T) {
	persistence := mocks.NewMockPersistence()
	persistence.GetMockToolRepository().On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	registry := NewToolRegistry(persistence, nil, testLogger())

	_, err := registry.Register(t.Context(), &models.Tool{Repository: "owner/repo"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, registry.Len())
}

func TestToolRegistry_Register_PublishesEvent(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	registry := NewToolRegistry(file.NewPersistence(t.TempDir()), bus, testLogger())

	tool, err := registry.Register(t.Context(), &models.Tool{Repository: "owner/repo"})
	require.NoError(t, err)

	require.NoError(t, registry.Remove(t.Context(), tool.ID))

	assert.Equal(t, []events.EventType{events.ToolRegisteredEvent, events.ToolRemovedEvent}, bus.PublishedTypes())
	bus.AssertCalled(t, "Publish", mock.Anything, tool.ID, mock.Anything)
}

func TestToolRegistry_Remove(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	registry := NewToolRegistry(persistence, nil, testLogger())

	tool, err := registry.Register(t.Context(), &models.Tool{Repository: "owner/repo"})
	require.NoError(t, err)

	require.NoError(t, registry.Remove(t.Context(), tool.ID))

	_, err = registry.Get(tool.ID)
	assert.True(t, IsNotFound(err))

	stored, err := persistence.ToolRepository().GetByID(t.Context(), tool.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	err = registry.Remove(t.Context(), tool.ID)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestToolRegistry_Remove_WhileInstalling(t *testing.T) {
	registry := NewToolRegistry(file.NewPersistence(t.TempDir()), nil, testLogger())

	tool, err := registry.Register(t.Context(), &models.Tool{Repository: "owner/repo"})
	require.NoError(t, err)

	_, err = registry.Transition(t.Context(), tool.ID, StatusChange{To: models.ToolStatusInstalling})
	require.NoError(t, err)

	err = registry.Remove(t.Context(), tool.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, registry.Len())
}

func TestToolRegistry_ListKeepsRegistrationOrder(t *testing.T) {
	registry := NewToolRegistry(file.NewPersistence(t.TempDir()), nil, testLogger())

	repositories := []string{"c/three", "a/one", "b/two"}
	for _, repository := range repositories {
		_, err := registry.Register(t.Context(), &models.Tool{Repository: repository})
		require.NoError(t, err)
	}

	tools := registry.List()
	require.Len(t, tools, 3)

	for i, tool := range tools {
		assert.Equal(t, repositories[i], tool.Repository)
	}

	tools[0].Name = "mutated"
	assert.NotEqual(t, "mutated", registry.List()[0].Name)
}

func TestToolRegistry_Register_DuplicateName(t *testing.T) {
	registry := NewToolRegistry(file.NewPersistence(t.TempDir()), nil, testLogger())

	first, err := registry.Register(t.Context(), &models.Tool{Repository: "projectdiscovery/katana"})
	require.NoError(t, err)

	_, err = registry.Register(t.Context(), &models.Tool{Repository: "someone/katana"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateReference)
	assert.Equal(t, "duplicate_name", ErrorCode(err))
	assert.Equal(t, 1, registry.Len())

	second, err := registry.Register(t.Context(), &models.Tool{Name: "katana-fork", Repository: "someone/katana"})
	require.NoError(t, err)

	byName, ok := registry.Resolve("katana")
	require.True(t, ok)
	assert.Equal(t, first.ID, byName.ID)

	byName, ok = registry.Resolve("katana-fork")
	require.True(t, ok)
	assert.Equal(t, second.ID, byName.ID)
}

func TestToolRegistry_Resolve(t *testing.T) {
	registry := NewToolRegistry(file.NewPersistence(t.TempDir()), nil, testLogger())

	first, err := registry.Register(t.Context(), &models.Tool{Repository: "projectdiscovery/subfinder"})
	require.NoError(t, err)

	second, err := registry.Register(t.Context(), &models.Tool{Name: "finder", Repository: "other/tool"})
	require.NoError(t, err)

	byID, ok := registry.Resolve(second.ID)
	require.True(t, ok)
	assert.Equal(t, second.ID, byID.ID)

	byName, ok := registry.Resolve("subfinder")
	require.True(t, ok)
	assert.Equal(t, first.ID, byName.ID)

	byRepository, ok := registry.Resolve("https://github.com/other/tool")
	require.True(t, ok)
	assert.Equal(t, second.ID, byRepository.ID)

	_, ok = registry.Resolve("missing")
	assert.False(t, ok)
}

func TestToolRegistry_Transition(t *testing.T) {
	registry := NewToolRegistry(file.NewPersistence(t.TempDir()), nil, testLogger())

	tool, err := registry.Register(t.Context(), &models.Tool{Repository: "owner/repo"})
	require.NoError(t, err)

	_, err = registry.Transition(t.Context(), tool.ID, StatusChange{To: models.ToolStatusReady})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = registry.Transition(t.Context(), tool.ID, StatusChange{To: models.ToolStatusInstalling})
	require.NoError(t, err)

	failed, err := registry.Transition(t.Context(), tool.ID, StatusChange{To: models.ToolStatusError, Error: "clone failed"})
	require.NoError(t, err)
	assert.Equal(t, models.ToolStatusError, failed.Status)
	assert.Equal(t, "clone failed", failed.Error)

	_, err = registry.Transition(t.Context(), "missing", StatusChange{To: models.ToolStatusInstalling})
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestToolRegistry_Reset(t *testing.T) {
	registry := NewToolRegistry(file.NewPersistence(t.TempDir()), nil, testLogger())

	tool, err := registry.Register(t.Context(), &models.Tool{Repository: "owner/repo"})
	require.NoError(t, err)

	_, err = registry.Reset(t.Context(), tool.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = registry.Transition(t.Context(), tool.ID, StatusChange{To: models.ToolStatusInstalling})
	require.NoError(t, err)
	_, err = registry.Transition(t.Context(), tool.ID, StatusChange{To: models.ToolStatusError, Error: "boom"})
	require.NoError(t, err)

	reset, err := registry.Reset(t.Context(), tool.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ToolStatusPending, reset.Status)
	assert.Empty(t, reset.Error)
}

func TestToolRegistry_Init(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	registry := NewToolRegistry(persistence, nil, testLogger())

	var ids []string

	for _, repository := range []string{"z/last", "a/first", "m/middle"} {
		tool, err := registry.Register(t.Context(), &models.Tool{Repository: repository})
		require.NoError(t, err)

		ids = append(ids, tool.ID)
	}

	_, err := registry.Transition(t.Context(), ids[1], StatusChange{To: models.ToolStatusInstalling})
	require.NoError(t, err)

	restored := NewToolRegistry(persistence, nil, testLogger())
	require.NoError(t, restored.Init(t.Context()))

	tools := restored.List()
	require.Len(t, tools, 3)

	for i, tool := range tools {
		assert.Equal(t, ids[i], tool.ID)
	}

	assert.Equal(t, models.ToolStatusError, tools[1].Status)
	assert.Equal(t, InterruptedInstallDetail, tools[1].Error)

	next, err := restored.Register(t.Context(), &models.Tool{Repository: "n/next"})
	require.NoError(t, err)
	assert.Greater(t, next.Sequence, tools[2].Sequence)
}
