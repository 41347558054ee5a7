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

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dukex/toolflow/pkg/executor"
	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CancelledDetail is the error detail of a tool whose install was cancelled.
const CancelledDetail = "install cancelled"

const maxDetailLength = 512

// InstallTask tracks one asynchronous install.
type InstallTask struct {
	ToolID string

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	cancelled bool
	status    models.ToolStatus
	err       error
}

// Done is closed when the install reached a terminal status.
func (t *InstallTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the install finishes and returns the terminal tool status.
// The error is ErrCancelled for cancelled installs and ErrExecutionFailure for failed ones.
func (t *InstallTask) Wait(ctx context.Context) (models.ToolStatus, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.status, t.err
}

func (t *InstallTask) requestCancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()

	t.cancel()
}

func (t *InstallTask) cancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cancelled
}

func (t *InstallTask) finish(status models.ToolStatus, err error) {
	t.mu.Lock()
	t.status = status
	t.err = err
	t.mu.Unlock()

	close(t.done)
}

// Installer drives tools from pending or error to ready through the executor.
// At most one install per tool runs at a time.
type Installer struct {
	registry *ToolRegistry
	executor executor.Executor
	tracer   trace.Tracer
	logger   *slog.Logger
	toolsDir string

	inFlight mapset.Set[string]

	mu     sync.Mutex
	tasks  map[string]*InstallTask
	closed bool
	wg     sync.WaitGroup
}

// NewInstaller creates an installer rooted at toolsDir. A relative toolsDir is resolved against the
// working directory, since GOBIN and PATH entries must be absolute.
func NewInstaller(
	registry *ToolRegistry,
	exec executor.Executor,
	tracer trace.Tracer,
	logger *slog.Logger,
	toolsDir string,
) (*Installer, error) {
	absDir, err := filepath.Abs(toolsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tools directory %q: %w", toolsDir, err)
	}

	return &Installer{
		registry: registry,
		executor: exec,
		tracer:   tracer,
		logger:   logger.With("module", "installer"),
		toolsDir: absDir,
		inFlight: mapset.NewSet[string](),
		tasks:    make(map[string]*InstallTask),
	}, nil
}

// ToolsDir returns the absolute directory tools are installed into.
func (i *Installer) ToolsDir() string {
	return i.toolsDir
}

// Install moves the tool to installing and runs its install procedure in the background.
func (i *Installer) Install(ctx context.Context, id string) (*InstallTask, error) {
	i.mu.Lock()
	closed := i.closed
	i.mu.Unlock()

	if closed {
		return nil, newError("install_tool", "installer_closed", "installer is shutting down", ErrInvalidState)
	}

	tool, err := i.registry.Get(id)
	if err != nil {
		return nil, err
	}

	if !i.inFlight.Add(id) {
		return nil, newError("install_tool", "install_in_progress", "tool is already being installed", ErrInvalidState)
	}

	if tool.Status != models.ToolStatusPending && tool.Status != models.ToolStatusError {
		i.inFlight.Remove(id)

		return nil, newError("install_tool", "invalid_state",
			fmt.Sprintf("tool in status %s cannot be installed", tool.Status), ErrInvalidState)
	}

	tool, err = i.registry.Transition(ctx, id, StatusChange{To: models.ToolStatusInstalling})
	if err != nil {
		i.inFlight.Remove(id)

		return nil, err
	}

	installCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	task := &InstallTask{
		ToolID: id,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		cancel()

		_, _ = i.registry.Transition(ctx, id, StatusChange{To: models.ToolStatusError, Error: CancelledDetail})
		i.inFlight.Remove(id)

		return nil, newError("install_tool", "installer_closed", "installer is shutting down", ErrInvalidState)
	}

	i.tasks[id] = task
	i.wg.Add(1)
	i.mu.Unlock()

	go i.run(installCtx, tool, task)

	return task, nil
}

// Cancel stops the in-flight install of a tool. The tool ends in error with a cancelled detail.
func (i *Installer) Cancel(id string) error {
	i.mu.Lock()
	task, ok := i.tasks[id]
	i.mu.Unlock()

	if !ok {
		if _, err := i.registry.Get(id); err != nil {
			return err
		}

		return newError("cancel_install", "not_installing", "tool has no install in progress", ErrInvalidState)
	}

	i.logger.Info("Cancelling install", "tool_id", id)
	task.requestCancel()

	return nil
}

// Task returns the in-flight install of a tool, if any.
func (i *Installer) Task(id string) (*InstallTask, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	task, ok := i.tasks[id]

	return task, ok
}

// Close cancels every in-flight install and waits for them to settle.
func (i *Installer) Close() {
	i.mu.Lock()
	i.closed = true

	for _, task := range i.tasks {
		task.requestCancel()
	}
	i.mu.Unlock()

	i.wg.Wait()
}

func (i *Installer) run(ctx context.Context, tool *models.Tool, task *InstallTask) {
	defer i.wg.Done()
	defer task.cancel()

	logger := i.logger.With("tool_id", tool.ID, "repository", tool.Repository)

	ctx, span := otelhelper.StartSpan(ctx, i.tracer, "tool.install",
		attribute.String(otelhelper.ToolIDKey, tool.ID),
		attribute.String(otelhelper.ToolRepositoryKey, tool.Repository),
		attribute.String(otelhelper.InstallMethodKey, string(tool.InstallMethod)),
	)
	defer span.End()

	logger.InfoContext(ctx, "Installing tool", "method", tool.InstallMethod)

	installPath, err := i.install(ctx, tool, task)

	change := StatusChange{To: models.ToolStatusReady, InstallPath: installPath}
	status := models.ToolStatusReady

	switch {
	case task.cancelRequested():
		err = ErrCancelled
		change = StatusChange{To: models.ToolStatusError, Error: CancelledDetail}
		status = models.ToolStatusError

		logger.InfoContext(ctx, "Tool install cancelled")
	case err != nil:
		change = StatusChange{To: models.ToolStatusError, Error: err.Error()}
		status = models.ToolStatusError

		otelhelper.SetError(span, err, attribute.String(otelhelper.ToolIDKey, tool.ID))
		logger.ErrorContext(ctx, "Tool install failed", "error", err)
	default:
		logger.InfoContext(ctx, "Tool installed", "install_path", installPath)
	}

	// Subscribers of the terminal status may start a new install right away. The tool is still
	// installing until the transition below, so a concurrent Install fails on the status check.
	i.mu.Lock()
	delete(i.tasks, tool.ID)
	i.mu.Unlock()

	i.inFlight.Remove(tool.ID)

	// The registry mutation must survive the cancelled install context.
	if _, terr := i.registry.Transition(context.WithoutCancel(ctx), tool.ID, change); terr != nil {
		logger.ErrorContext(ctx, "Failed to record install result", "error", terr)
	}

	task.finish(status, err)
}

// install runs the install phases in order and stops at the first failure or cancellation.
func (i *Installer) install(ctx context.Context, tool *models.Tool, task *InstallTask) (string, error) {
	plan, err := i.plan(tool)
	if err != nil {
		return "", err
	}

	for _, phase := range plan.phases {
		if task.cancelRequested() {
			return "", ErrCancelled
		}

		if phase.when != nil && !phase.when() {
			continue
		}

		if err := i.runPhase(ctx, tool, phase); err != nil {
			return "", err
		}
	}

	return plan.installPath, nil
}

func (i *Installer) runPhase(ctx context.Context, tool *models.Tool, phase installPhase) error {
	ctx, span := otelhelper.StartSpan(ctx, i.tracer, "tool.install."+phase.name,
		attribute.String(otelhelper.ToolIDKey, tool.ID),
		attribute.String(otelhelper.CommandKey, phase.command.Line),
	)
	defer span.End()

	i.logger.DebugContext(ctx, "Running install phase", "tool_id", tool.ID, "phase", phase.name, "command", phase.command.Line)

	if phase.command.Dir != "" && phase.prepareDir {
		if err := os.MkdirAll(phase.command.Dir, 0o755); err != nil {
			otelhelper.SetError(span, err)

			return fmt.Errorf("%s: %w", phase.name, err)
		}
	}

	result, err := i.executor.Execute(ctx, phase.command)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("%s: %w: %w", phase.name, ErrExecutionFailure, err)
	}

	span.SetAttributes(attribute.Int(otelhelper.ExitCodeKey, result.ExitCode))

	if !result.Success() {
		err := fmt.Errorf("%s: %w: exit status %d", phase.name, ErrExecutionFailure, result.ExitCode)
		if detail := lastLines(result.Stderr, maxDetailLength); detail != "" {
			err = fmt.Errorf("%w: %s", err, detail)
		}

		otelhelper.SetError(span, err)

		return err
	}

	return nil
}

type installPhase struct {
	name       string
	command    executor.Command
	when       func() bool // Evaluated right before the phase runs
	prepareDir bool        // Create command.Dir before running
}

type installPlan struct {
	installPath string
	phases      []installPhase
}

// plan builds the install phases for a tool.
func (i *Installer) plan(tool *models.Tool) (*installPlan, error) {
	ref := parseReference(tool.Repository)
	dir := filepath.Join(i.toolsDir, ref.owner, ref.checkoutName())

	if tool.InstallCommand != "" {
		return &installPlan{
			installPath: dir,
			phases: []installPhase{{
				name:       "custom",
				command:    executor.Command{Line: tool.InstallCommand, Dir: dir},
				prepareDir: true,
			}},
		}, nil
	}

	switch tool.InstallMethod {
	case models.InstallMethodGit:
		return i.gitPlan(ref, dir), nil
	case models.InstallMethodGo:
		binDir := filepath.Join(i.toolsDir, "bin")

		version := ref.version
		if version == "" {
			version = "latest"
		}

		return &installPlan{
			installPath: binDir,
			phases: []installPhase{{
				name: "go-install",
				command: executor.Command{
					Line: fmt.Sprintf("go install github.com/%s/...@%s", ref.module(), version),
					Env:  []string{"GOBIN=" + binDir},
				},
			}},
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported install method %q", ErrExecutionFailure, tool.InstallMethod)
	}
}

// gitPlan clones the repository at the requested version, or refreshes an existing checkout, and
// builds the referenced packages into bin/ when it is a Go module.
func (i *Installer) gitPlan(ref reference, dir string) *installPlan {
	url := "https://github.com/" + ref.owner + "/" + ref.repo

	var phases []installPhase

	if isGitCheckout(dir) {
		fetch := "git fetch --depth 1 origin"
		if ref.version != "" {
			fetch += " " + shellQuote(ref.version)
		}

		phases = append(phases,
			installPhase{
				name:    "git-fetch",
				command: executor.Command{Line: fetch, Dir: dir},
			},
			installPhase{
				name:    "git-reset",
				command: executor.Command{Line: "git reset --hard FETCH_HEAD", Dir: dir},
			},
		)
	} else {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			i.logger.Warn("Failed to create tools directory", "path", filepath.Dir(dir), "error", err)
		}

		clone := "git clone --depth 1"
		if ref.version != "" {
			clone += " --branch " + shellQuote(ref.version)
		}

		phases = append(phases, installPhase{
			name:    "git-clone",
			command: executor.Command{Line: fmt.Sprintf("%s %s %s", clone, url, shellQuote(dir))},
		})
	}

	packages := "./..."
	if ref.subPath != "" {
		packages = "./" + ref.subPath + "/..."
	}

	phases = append(phases, installPhase{
		name:    "go-build",
		command: executor.Command{Line: "go build -o bin/ " + packages, Dir: dir},
		when: func() bool {
			_, err := os.Stat(filepath.Join(dir, "go.mod"))

			return err == nil
		},
	})

	return &installPlan{installPath: dir, phases: phases}
}

// reference is a normalized repository split into its parts: owner/repo[/subPath][@version].
type reference struct {
	owner   string
	repo    string
	subPath string
	version string
}

func parseReference(repository string) reference {
	module, version := splitVersion(repository)
	parts := strings.SplitN(module, "/", 3)

	ref := reference{owner: parts[0], version: version}
	if len(parts) > 1 {
		ref.repo = parts[1]
	}

	if len(parts) > 2 {
		ref.subPath = parts[2]
	}

	return ref
}

func (r reference) module() string {
	if r.subPath == "" {
		return r.owner + "/" + r.repo
	}

	return r.owner + "/" + r.repo + "/" + r.subPath
}

// checkoutName is unique per normalized repository: '+' and '@' never appear in owner, repo or
// sub-path segments.
func (r reference) checkoutName() string {
	name := r.repo
	if r.subPath != "" {
		name += "+" + strings.ReplaceAll(r.subPath, "/", "+")
	}

	if r.version != "" {
		name += "@" + r.version
	}

	return name
}

func isGitCheckout(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))

	return err == nil && info.IsDir()
}

// splitVersion separates an optional @version suffix from a repository reference.
func splitVersion(repository string) (string, string) {
	if at := strings.LastIndex(repository, "@"); at > 0 {
		return repository[:at], repository[at+1:]
	}

	return repository, ""
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func lastLines(output string, limit int) string {
	output = strings.TrimSpace(output)
	if len(output) > limit {
		output = output[len(output)-limit:]
	}

	return output
}

// IsCancelled reports whether err comes from a cancelled install or run.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
