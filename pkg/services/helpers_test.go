package services

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/toolflow/pkg/executor"
	"github.com/dukex/toolflow/pkg/executor/executortest"
	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/otelhelper"
	"github.com/dukex/toolflow/pkg/persistence/file"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testEngine struct {
	*Engine

	persistence *file.Persistence
	executor    *executortest.Fake
	toolsDir    string
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	return newTestEngineWith(t, executortest.New())
}

func newTestEngineWith(t *testing.T, exec *executortest.Fake) *testEngine {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	toolsDir := t.TempDir()

	engine, err := NewEngine(Config{
		Persistence: persistence,
		Executor:    exec,
		Tracer:      otelhelper.NoopTracer(),
		Logger:      testLogger(),
		ToolsDir:    toolsDir,
	})
	require.NoError(t, err)
	require.NoError(t, engine.Init(t.Context()))
	t.Cleanup(engine.Close)

	return &testEngine{Engine: engine, persistence: persistence, executor: exec, toolsDir: toolsDir}
}

// readyTool registers a tool and installs it with the fake executor.
func (e *testEngine) readyTool(t *testing.T, repository string, method models.InstallMethod) *models.Tool {
	t.Helper()

	tool, err := e.RegisterTool(t.Context(), &models.Tool{Repository: repository, InstallMethod: method})
	require.NoError(t, err)

	task, err := e.InstallTool(t.Context(), tool.ID)
	require.NoError(t, err)

	status, err := task.Wait(t.Context())
	require.NoError(t, err)
	require.Equal(t, models.ToolStatusReady, status)

	tool, err = e.GetTool(tool.ID)
	require.NoError(t, err)

	return tool
}

// savedWorkflow stores a workflow with one step per tool reference, running the given commands.
func (e *testEngine) savedWorkflow(t *testing.T, name string, steps ...[2]string) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{Name: name}
	for _, step := range steps {
		workflow.Steps = append(workflow.Steps, &models.WorkflowStep{Tool: step[0], Command: step[1]})
	}

	saved, err := e.SaveWorkflow(t.Context(), workflow)
	require.NoError(t, err)

	return saved
}

func waitStarted(t *testing.T, exec *executortest.Fake) executor.Command {
	t.Helper()

	select {
	case cmd := <-exec.Started():
		return cmd
	case <-time.After(5 * time.Second):
		t.Fatal("command was not started")

		return executor.Command{}
	}
}
