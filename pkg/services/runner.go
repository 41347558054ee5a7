package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dukex/toolflow/pkg/eventbus"
	"github.com/dukex/toolflow/pkg/events"
	"github.com/dukex/toolflow/pkg/executor"
	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxRetainedRuns bounds the number of finished run reports kept in memory.
const maxRetainedRuns = 256

// Run is the handle of one asynchronous workflow run.
type Run struct {
	ID         string
	WorkflowID string

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	cancelled bool
	report    *models.WorkflowRunReport
}

// Done is closed when the run produced its final report.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Report returns a copy of the current report.
func (r *Run) Report() *models.WorkflowRunReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.report.Clone()
}

// Wait blocks until the run finishes and returns its final report.
func (r *Run) Wait(ctx context.Context) (*models.WorkflowRunReport, error) {
	select {
	case <-r.done:
		return r.Report(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Run) requestCancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()

	r.cancel()
}

func (r *Run) cancelRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.cancelled
}

func (r *Run) record(outcome models.StepOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.Steps = append(r.report.Steps, outcome)
}

// WorkflowRunner executes stored workflows step by step, stopping at the first unsuccessful step.
type WorkflowRunner struct {
	store     *WorkflowStore
	registry  *ToolRegistry
	executor  executor.Executor
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger

	mu     sync.Mutex
	runs   map[string]*Run
	order  []string
	closed bool
	wg     sync.WaitGroup
}

func NewWorkflowRunner(
	store *WorkflowStore,
	registry *ToolRegistry,
	exec executor.Executor,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
) *WorkflowRunner {
	return &WorkflowRunner{
		store:     store,
		registry:  registry,
		executor:  exec,
		publisher: publisher,
		tracer:    tracer,
		logger:    logger.With("module", "workflow_runner"),
		runs:      make(map[string]*Run),
	}
}

// Start begins a run of a stored workflow and returns immediately.
// The run works on a snapshot of the workflow taken now.
func (w *WorkflowRunner) Start(ctx context.Context, workflowID string) (*Run, error) {
	workflow, err := w.store.Get(workflowID)
	if err != nil {
		return nil, err
	}

	if len(workflow.Steps) == 0 {
		return nil, newError("run_workflow", "empty_workflow", "workflow has no steps", ErrEmptyWorkflow)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &Run{
		ID:         uuid.New().String(),
		WorkflowID: workflow.ID,
		cancel:     cancel,
		done:       make(chan struct{}),
		report: &models.WorkflowRunReport{
			WorkflowID: workflow.ID,
			Status:     models.RunStatusRunning,
			Steps:      make([]models.StepOutcome, 0, len(workflow.Steps)),
			StartedAt:  time.Now().UTC(),
		},
	}
	run.report.ID = run.ID

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		cancel()

		return nil, newError("run_workflow", "runner_closed", "workflow runner is shutting down", ErrInvalidState)
	}

	w.runs[run.ID] = run
	w.order = append(w.order, run.ID)
	w.evictLocked()
	w.wg.Add(1)
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Workflow run started", "run_id", run.ID, "workflow_id", workflow.ID, "steps", len(workflow.Steps))
	notify(ctx, w.publisher, w.logger, workflow.ID, events.WorkflowRunStarted{
		BaseEvent:  events.NewBaseEvent(events.WorkflowRunStartedEvent),
		RunID:      run.ID,
		WorkflowID: workflow.ID,
		Steps:      len(workflow.Steps),
	})

	go w.execute(runCtx, workflow, run)

	return run, nil
}

// Run starts a workflow and waits for its report.
func (w *WorkflowRunner) Run(ctx context.Context, workflowID string) (*models.WorkflowRunReport, error) {
	run, err := w.Start(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return run.Wait(ctx)
}

// Cancel requests cancellation of a run. The running step is interrupted and no further step starts.
func (w *WorkflowRunner) Cancel(runID string) error {
	w.mu.Lock()
	run, ok := w.runs[runID]
	w.mu.Unlock()

	if !ok {
		return newError("cancel_run", "run_not_found", "run not found: "+runID, ErrRunNotFound)
	}

	select {
	case <-run.done:
		return newError("cancel_run", "run_finished", "run already finished", ErrInvalidState)
	default:
	}

	w.logger.Info("Cancelling workflow run", "run_id", runID)
	run.requestCancel()

	return nil
}

// Report returns the current report of a run.
func (w *WorkflowRunner) Report(runID string) (*models.WorkflowRunReport, error) {
	w.mu.Lock()
	run, ok := w.runs[runID]
	w.mu.Unlock()

	if !ok {
		return nil, newError("get_run", "run_not_found", "run not found: "+runID, ErrRunNotFound)
	}

	return run.Report(), nil
}

// Runs returns the reports of known runs, oldest first.
func (w *WorkflowRunner) Runs() []*models.WorkflowRunReport {
	w.mu.Lock()
	runs := make([]*Run, 0, len(w.order))
	for _, id := range w.order {
		runs = append(runs, w.runs[id])
	}
	w.mu.Unlock()

	reports := make([]*models.WorkflowRunReport, 0, len(runs))
	for _, run := range runs {
		reports = append(reports, run.Report())
	}

	return reports
}

// Close cancels active runs and waits for them to finish.
func (w *WorkflowRunner) Close() {
	w.mu.Lock()
	w.closed = true

	for _, run := range w.runs {
		select {
		case <-run.done:
		default:
			run.requestCancel()
		}
	}
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *WorkflowRunner) execute(ctx context.Context, workflow *models.Workflow, run *Run) {
	defer w.wg.Done()
	defer run.cancel()

	logger := w.logger.With("run_id", run.ID, "workflow_id", workflow.ID)

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "workflow.run",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
	)
	defer span.End()

	var failure *models.StepOutcome

	for position, step := range workflow.Steps {
		if run.cancelRequested() {
			break
		}

		outcome := w.runStep(ctx, run, position, step)
		run.record(outcome)

		logger.InfoContext(ctx, "Workflow step completed",
			"step_id", step.ID, "position", position, "status", outcome.Status, "exit_code", outcome.ExitCode)
		notify(ctx, w.publisher, w.logger, workflow.ID, events.WorkflowRunStepCompleted{
			BaseEvent:  events.NewBaseEvent(events.WorkflowRunStepCompletedEvent),
			RunID:      run.ID,
			WorkflowID: workflow.ID,
			Position:   position,
			Outcome:    outcome,
		})

		if !outcome.Succeeded() {
			failure = &outcome

			break
		}
	}

	finished := time.Now().UTC()

	run.mu.Lock()
	report := run.report

	switch {
	case run.cancelled:
		report.Status = models.RunStatusCancelled
		report.Error = ErrCancelled.Error()
	case failure != nil:
		report.Status = models.RunStatusFailed
		report.Error = fmt.Sprintf("step %d failed: %s", len(report.Steps), failure.Error)
	case len(report.Steps) == len(workflow.Steps):
		report.Status = models.RunStatusSucceeded
	default:
		report.Status = models.RunStatusFailed
	}

	report.FinishedAt = &finished
	final := report.Clone()
	run.mu.Unlock()

	if final.Status != models.RunStatusSucceeded {
		otelhelper.SetError(span, errors.New(final.Error), attribute.String(otelhelper.RunIDKey, run.ID))
	}

	logger.InfoContext(ctx, "Workflow run finished", "status", final.Status, "steps", len(final.Steps))

	// Completion subscribers observe a finished run.
	close(run.done)

	notify(context.WithoutCancel(ctx), w.publisher, w.logger, workflow.ID, events.WorkflowRunCompleted{
		BaseEvent: events.NewBaseEvent(events.WorkflowRunCompletedEvent),
		Report:    final,
	})
}

// runStep resolves the step's tool at the moment it starts and runs its command.
func (w *WorkflowRunner) runStep(ctx context.Context, run *Run, position int, step *models.WorkflowStep) models.StepOutcome {
	outcome := models.StepOutcome{
		StepID:    step.ID,
		Tool:      step.Tool,
		Command:   step.Command,
		StartedAt: time.Now().UTC(),
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "workflow.step",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.Int(otelhelper.StepPositionKey, position),
	)
	defer span.End()

	defer func() {
		outcome.FinishedAt = time.Now().UTC()
	}()

	tool, ok := w.registry.Resolve(step.Tool)
	if !ok || tool.Status != models.ToolStatusReady {
		err := fmt.Errorf("%w: %s", ErrUnresolvedTool, step.Tool)
		if ok {
			err = fmt.Errorf("%w: %s is %s", ErrUnresolvedTool, step.Tool, tool.Status)
		}

		outcome.Status = models.StepStatusUnresolved
		outcome.ExitCode = -1
		outcome.Error = err.Error()
		otelhelper.SetError(span, err)

		return outcome
	}

	outcome.ToolID = tool.ID

	result, err := w.executor.Execute(ctx, stepCommand(tool, step))

	if result != nil {
		outcome.ExitCode = result.ExitCode
		outcome.Stdout = result.Stdout
		outcome.Stderr = result.Stderr
	}

	switch {
	case run.cancelRequested():
		outcome.Status = models.StepStatusCancelled
		outcome.Error = ErrCancelled.Error()
	case err != nil:
		outcome.Status = models.StepStatusFailed
		outcome.ExitCode = -1
		outcome.Error = fmt.Errorf("%w: %w", ErrExecutionFailure, err).Error()
		otelhelper.SetError(span, err)
	case !result.Success():
		outcome.Status = models.StepStatusFailed
		outcome.Error = fmt.Sprintf("%s: exit status %d", ErrExecutionFailure, result.ExitCode)
		span.SetAttributes(attribute.Int(otelhelper.ExitCodeKey, result.ExitCode))
	default:
		outcome.Status = models.StepStatusSucceeded
	}

	return outcome
}

// stepCommand runs git tools from their checkout and puts the install path first on PATH.
// For git tools the binaries built into bin/ come before the checkout itself.
// A step without a command invokes the tool by name.
func stepCommand(tool *models.Tool, step *models.WorkflowStep) executor.Command {
	line := strings.TrimSpace(step.Command)
	if line == "" {
		line = tool.Name
	}

	cmd := executor.Command{Line: line}

	if tool.InstallPath != "" {
		path := []string{tool.InstallPath, os.Getenv("PATH")}

		if tool.InstallMethod == models.InstallMethodGit && tool.InstallCommand == "" {
			path = append([]string{filepath.Join(tool.InstallPath, "bin")}, path...)
		}

		if tool.InstallMethod == models.InstallMethodGit {
			cmd.Dir = tool.InstallPath
		}

		cmd.Env = []string{"PATH=" + strings.Join(path, string(os.PathListSeparator))}
	}

	return cmd
}

// evictLocked drops the oldest finished runs beyond the retention bound. Callers hold w.mu.
func (w *WorkflowRunner) evictLocked() {
	for len(w.order) > maxRetainedRuns {
		evicted := false

		for i, id := range w.order {
			select {
			case <-w.runs[id].done:
				delete(w.runs, id)
				w.order = append(w.order[:i], w.order[i+1:]...)
				evicted = true
			default:
			}

			if evicted {
				break
			}
		}

		if !evicted {
			return
		}
	}
}
