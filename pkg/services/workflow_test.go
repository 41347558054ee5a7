package services

import (
	"encoding/json"
	"testing"

	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*WorkflowStore, *file.Persistence) {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())

	return NewWorkflowStore(persistence, nil, testLogger()), persistence
}

func stepIDs(workflow *models.Workflow) []string {
	ids := make([]string, len(workflow.Steps))
	for i, step := range workflow.Steps {
		ids[i] = step.ID
	}

	return ids
}

func TestWorkflowStore_Create(t *testing.T) {
	store, _ := newTestStore(t)

	workflow := store.Create()

	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, models.DefaultWorkflowName, workflow.Name)
	assert.Empty(t, workflow.Steps)
	assert.Empty(t, store.List())

	draft, err := store.Draft(workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.ID, draft.ID)
}

func TestWorkflowStore_Save(t *testing.T) {
	store, persistence := newTestStore(t)

	saved, err := store.Save(t.Context(), &models.Workflow{
		Name: "Recon",
		Steps: []*models.WorkflowStep{
			{Tool: "subfinder", Command: "subfinder -d example.com"},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, saved.ID)
	assert.NotEmpty(t, saved.Steps[0].ID)
	assert.Equal(t, int64(1), saved.Sequence)
	assert.False(t, saved.CreatedAt.IsZero())

	stored, err := persistence.WorkflowRepository().GetByID(t.Context(), saved.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Recon", stored.Name)
}

func TestWorkflowStore_Save_UpdatesInPlace(t *testing.T) {
	store, _ := newTestStore(t)

	first, err := store.Save(t.Context(), &models.Workflow{Name: "First"})
	require.NoError(t, err)

	second, err := store.Save(t.Context(), &models.Workflow{Name: "Second"})
	require.NoError(t, err)

	first.Name = "First (renamed)"
	first.Steps = append(first.Steps, &models.WorkflowStep{Tool: "nmap", Command: "nmap -sV host"})

	updated, err := store.Save(t.Context(), first)
	require.NoError(t, err)
	assert.Equal(t, first.Sequence, updated.Sequence)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt)

	workflows := store.List()
	require.Len(t, workflows, 2)
	assert.Equal(t, first.ID, workflows[0].ID)
	assert.Equal(t, "First (renamed)", workflows[0].Name)
	assert.Len(t, workflows[0].Steps, 1)
	assert.Equal(t, second.ID, workflows[1].ID)
}

func TestWorkflowStore_Save_Validation(t *testing.T) {
	store, _ := newTestStore(t)

	tests := []struct {
		name     string
		workflow *models.Workflow
		expected error
	}{
		{name: "nil workflow", workflow: nil, expected: ErrWorkflowNil},
		{name: "empty name", workflow: &models.Workflow{Name: "  "}, expected: ErrWorkflowNameRequired},
		{name: "bad schedule", workflow: &models.Workflow{Name: "Nightly", Schedule: "every night"}, expected: ErrInvalidSchedule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Save(t.Context(), tt.workflow)

			assert.ErrorIs(t, err, tt.expected)
			assert.True(t, IsValidationError(err))
			assert.Empty(t, store.List())
		})
	}

	saved, err := store.Save(t.Context(), &models.Workflow{Name: "Nightly", Schedule: "0 2 * * *"})
	require.NoError(t, err)
	assert.Equal(t, "0 2 * * *", saved.Schedule)
}

func TestWorkflowStore_SaveClosesEditSession(t *testing.T) {
	store, _ := newTestStore(t)

	created := store.Create()
	_, err := store.AddStep(created.ID, "httpx", "httpx -l hosts.txt")
	require.NoError(t, err)

	saved, err := store.SaveDraft(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, saved.ID)
	assert.Equal(t, models.DefaultWorkflowName, saved.Name)
	assert.Len(t, saved.Steps, 1)

	_, err = store.Draft(created.ID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflowStore_StepEditingPreservesOrder(t *testing.T) {
	store, _ := newTestStore(t)

	workflow := store.Create()

	s1, err := store.AddStep(workflow.ID, "subfinder", "subfinder -d example.com")
	require.NoError(t, err)
	s2, err := store.AddStep(workflow.ID, "httpx", "httpx -silent")
	require.NoError(t, err)
	s3, err := store.AddStep(workflow.ID, "nuclei", "nuclei -t cves")
	require.NoError(t, err)

	require.NoError(t, store.RemoveStep(workflow.ID, s2.ID))

	draft, err := store.Draft(workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{s1.ID, s3.ID}, stepIDs(draft))

	s4, err := store.AddStep(workflow.ID, "katana", "katana -u example.com")
	require.NoError(t, err)

	draft, err = store.Draft(workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{s1.ID, s3.ID, s4.ID}, stepIDs(draft))
}

func TestWorkflowStore_UpdateStep(t *testing.T) {
	store, _ := newTestStore(t)

	workflow := store.Create()
	step, err := store.AddStep(workflow.ID, "nuclei", "nuclei")
	require.NoError(t, err)

	updated, err := store.UpdateStep(workflow.ID, step.ID, models.StepFieldCommand, "nuclei -severity high")
	require.NoError(t, err)
	assert.Equal(t, "nuclei -severity high", updated.Command)

	updated, err = store.UpdateStep(workflow.ID, step.ID, models.StepFieldTool, "projectdiscovery/nuclei")
	require.NoError(t, err)
	assert.Equal(t, "projectdiscovery/nuclei", updated.Tool)

	_, err = store.UpdateStep(workflow.ID, step.ID, "timeout", "10")
	assert.ErrorIs(t, err, ErrInvalidField)
	assert.True(t, IsValidationError(err))

	_, err = store.UpdateStep(workflow.ID, "missing", models.StepFieldTool, "x")
	assert.ErrorIs(t, err, ErrStepNotFound)

	_, err = store.UpdateStep("missing", step.ID, models.StepFieldTool, "x")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	assert.ErrorIs(t, store.RemoveStep(workflow.ID, "missing"), ErrStepNotFound)

	_, err = store.AddStep("missing", "x", "y")
	assert.True(t, IsNotFound(err))
}

func TestWorkflowStore_EditStoredWorkflow(t *testing.T) {
	store, _ := newTestStore(t)

	saved, err := store.Save(t.Context(), &models.Workflow{
		Name:  "Recon",
		Steps: []*models.WorkflowStep{{Tool: "subfinder", Command: "subfinder"}},
	})
	require.NoError(t, err)

	_, err = store.AddStep(saved.ID, "httpx", "httpx")
	require.NoError(t, err)

	stored, err := store.Get(saved.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Steps, 1)

	draft, err := store.Edit(saved.ID)
	require.NoError(t, err)
	assert.Len(t, draft.Steps, 2)

	_, err = store.SaveDraft(t.Context(), saved.ID)
	require.NoError(t, err)

	stored, err = store.Get(saved.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Steps, 2)
	assert.Len(t, store.List(), 1)
}

func TestWorkflowStore_Remove(t *testing.T) {
	store, persistence := newTestStore(t)

	saved, err := store.Save(t.Context(), &models.Workflow{Name: "Recon"})
	require.NoError(t, err)

	_, err = store.Edit(saved.ID)
	require.NoError(t, err)

	require.NoError(t, store.Remove(t.Context(), saved.ID))

	assert.Empty(t, store.List())

	_, err = store.Draft(saved.ID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	stored, err := persistence.WorkflowRepository().GetByID(t.Context(), saved.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	assert.ErrorIs(t, store.Remove(t.Context(), saved.ID), ErrWorkflowNotFound)

	unsaved := store.Create()
	require.NoError(t, store.Remove(t.Context(), unsaved.ID))

	_, err = store.Draft(unsaved.ID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflowStore_Discard(t *testing.T) {
	store, _ := newTestStore(t)

	saved, err := store.Save(t.Context(), &models.Workflow{Name: "Recon"})
	require.NoError(t, err)

	_, err = store.AddStep(saved.ID, "httpx", "httpx -silent")
	require.NoError(t, err)

	require.NoError(t, store.Discard(saved.ID))

	_, err = store.Draft(saved.ID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	stored, err := store.Get(saved.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Steps)

	assert.ErrorIs(t, store.Discard(saved.ID), ErrWorkflowNotFound)

	unsaved := store.Create()
	require.NoError(t, store.Discard(unsaved.ID))

	_, err = store.Get(unsaved.ID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflowStore_Init(t *testing.T) {
	store, persistence := newTestStore(t)

	var ids []string

	for _, name := range []string{"Zeta", "Alpha", "Mu"} {
		saved, err := store.Save(t.Context(), &models.Workflow{Name: name})
		require.NoError(t, err)

		ids = append(ids, saved.ID)
	}

	restored := NewWorkflowStore(persistence, nil, testLogger())
	require.NoError(t, restored.Init(t.Context()))

	workflows := restored.List()
	require.Len(t, workflows, 3)

	for i, workflow := range workflows {
		assert.Equal(t, ids[i], workflow.ID)
	}

	added, err := restored.Save(t.Context(), &models.Workflow{Name: "Omega"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), added.Sequence)
}

func TestWorkflowStore_ImportExport(t *testing.T) {
	store, _ := newTestStore(t)

	document := []byte(`{
		"name": "Web scan",
		"schedule": "@daily",
		"steps": [
			{"tool": "httpx", "command": "httpx -l hosts.txt"},
			{"tool": "nuclei", "command": "nuclei -l live.txt"}
		]
	}`)

	imported, err := store.Import(t.Context(), document)
	require.NoError(t, err)
	assert.Equal(t, "Web scan", imported.Name)
	require.Len(t, imported.Steps, 2)
	assert.Equal(t, "nuclei", imported.Steps[1].Tool)

	exported, err := store.Export(imported.ID)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(exported, &decoded))
	assert.Equal(t, imported.ID, decoded["id"])
	assert.Equal(t, "@daily", decoded["schedule"])

	other, _ := newTestStore(t)

	copied, err := other.Import(t.Context(), exported)
	require.NoError(t, err)
	assert.Equal(t, imported.ID, copied.ID)
	assert.Equal(t, stepIDs(imported), stepIDs(copied))
}

func TestWorkflowStore_Import_Invalid(t *testing.T) {
	store, _ := newTestStore(t)

	tests := []struct {
		name     string
		document string
	}{
		{name: "not json", document: `{name:`},
		{name: "missing steps", document: `{"name": "x"}`},
		{name: "empty name", document: `{"name": "", "steps": []}`},
		{name: "step without tool", document: `{"name": "x", "steps": [{"command": "ls"}]}`},
		{name: "unknown step field", document: `{"name": "x", "steps": [{"tool": "a", "command": "b", "timeout": 3}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Import(t.Context(), []byte(tt.document))

			assert.ErrorIs(t, err, ErrInvalidDocument)
			assert.True(t, IsValidationError(err))
		})
	}

	assert.Empty(t, store.List())

	_, err := store.Export("missing")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}
