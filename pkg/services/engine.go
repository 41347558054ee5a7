package services

import (
	"context"
	"log/slog"

	"github.com/dukex/toolflow/pkg/eventbus"
	"github.com/dukex/toolflow/pkg/executor"
	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/persistence"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the single entry point used by the presentation layer.
type Engine struct {
	persistence persistence.Persistence
	tools       *ToolRegistry
	installer   *Installer
	workflows   *WorkflowStore
	runner      *WorkflowRunner
}

// Config holds the collaborators of an Engine.
type Config struct {
	Persistence persistence.Persistence
	Executor    executor.Executor
	Publisher   eventbus.EventPublisher // Optional
	Tracer      trace.Tracer
	Logger      *slog.Logger
	ToolsDir    string
}

func NewEngine(cfg Config) (*Engine, error) {
	tools := NewToolRegistry(cfg.Persistence, cfg.Publisher, cfg.Logger)
	workflows := NewWorkflowStore(cfg.Persistence, cfg.Publisher, cfg.Logger)

	installer, err := NewInstaller(tools, cfg.Executor, cfg.Tracer, cfg.Logger, cfg.ToolsDir)
	if err != nil {
		return nil, err
	}

	return &Engine{
		persistence: cfg.Persistence,
		tools:       tools,
		installer:   installer,
		workflows:   workflows,
		runner:      NewWorkflowRunner(workflows, tools, cfg.Executor, cfg.Publisher, cfg.Tracer, cfg.Logger),
	}, nil
}

// Init loads tools and workflows from persistence.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.tools.Init(ctx); err != nil {
		return err
	}

	return e.workflows.Init(ctx)
}

// Close stops in-flight installs and runs.
func (e *Engine) Close() {
	e.installer.Close()
	e.runner.Close()
}

// HealthCheck checks the health of the persistence layer.
func (e *Engine) HealthCheck(ctx context.Context) (string, bool) {
	if e.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := e.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (e *Engine) Tools() *ToolRegistry {
	return e.tools
}

func (e *Engine) Workflows() *WorkflowStore {
	return e.workflows
}

func (e *Engine) Runner() *WorkflowRunner {
	return e.runner
}

func (e *Engine) Installer() *Installer {
	return e.installer
}

func (e *Engine) RegisterTool(ctx context.Context, tool *models.Tool) (*models.Tool, error) {
	return e.tools.Register(ctx, tool)
}

func (e *Engine) RemoveTool(ctx context.Context, id string) error {
	return e.tools.Remove(ctx, id)
}

func (e *Engine) GetTool(id string) (*models.Tool, error) {
	return e.tools.Get(id)
}

func (e *Engine) ListTools() []*models.Tool {
	return e.tools.List()
}

func (e *Engine) InstallTool(ctx context.Context, id string) (*InstallTask, error) {
	return e.installer.Install(ctx, id)
}

func (e *Engine) CancelInstall(id string) error {
	return e.installer.Cancel(id)
}

func (e *Engine) ResetTool(ctx context.Context, id string) (*models.Tool, error) {
	return e.tools.Reset(ctx, id)
}

func (e *Engine) CreateWorkflow() *models.Workflow {
	return e.workflows.Create()
}

func (e *Engine) EditWorkflow(id string) (*models.Workflow, error) {
	return e.workflows.Edit(id)
}

func (e *Engine) SaveWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	return e.workflows.Save(ctx, workflow)
}

func (e *Engine) DraftWorkflow(id string) (*models.Workflow, error) {
	return e.workflows.Draft(id)
}

func (e *Engine) DiscardDraft(id string) error {
	return e.workflows.Discard(id)
}

func (e *Engine) SaveDraft(ctx context.Context, id string) (*models.Workflow, error) {
	return e.workflows.SaveDraft(ctx, id)
}

func (e *Engine) AddStep(id, tool, command string) (*models.WorkflowStep, error) {
	return e.workflows.AddStep(id, tool, command)
}

func (e *Engine) RemoveStep(id, stepID string) error {
	return e.workflows.RemoveStep(id, stepID)
}

func (e *Engine) UpdateStep(id, stepID string, field models.StepField, value string) (*models.WorkflowStep, error) {
	return e.workflows.UpdateStep(id, stepID, field, value)
}

func (e *Engine) GetWorkflow(id string) (*models.Workflow, error) {
	return e.workflows.Get(id)
}

func (e *Engine) ListWorkflows() []*models.Workflow {
	return e.workflows.List()
}

func (e *Engine) RemoveWorkflow(ctx context.Context, id string) error {
	return e.workflows.Remove(ctx, id)
}

func (e *Engine) ImportWorkflow(ctx context.Context, document []byte) (*models.Workflow, error) {
	return e.workflows.Import(ctx, document)
}

func (e *Engine) ExportWorkflow(id string) ([]byte, error) {
	return e.workflows.Export(id)
}

// RunWorkflow starts a run of a stored workflow.
func (e *Engine) RunWorkflow(ctx context.Context, workflowID string) (*Run, error) {
	return e.runner.Start(ctx, workflowID)
}

func (e *Engine) CancelRun(runID string) error {
	return e.runner.Cancel(runID)
}

func (e *Engine) RunReport(runID string) (*models.WorkflowRunReport, error) {
	return e.runner.Report(runID)
}

func (e *Engine) Runs() []*models.WorkflowRunReport {
	return e.runner.Runs()
}

// WaitInstall waits for the in-flight install of a tool, if any, and returns the tool.
func (e *Engine) WaitInstall(ctx context.Context, id string) (*models.Tool, error) {
	if task, ok := e.installer.Task(id); ok {
		if _, err := task.Wait(ctx); err != nil && ctx.Err() != nil {
			return nil, err
		}
	}

	return e.tools.Get(id)
}
