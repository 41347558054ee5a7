package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// DefaultMaxOutput bounds the captured stdout and stderr of a single process.
const DefaultMaxOutput = 1 << 20

// waitDelay bounds how long output pipes are drained after the context kills a process.
const waitDelay = 2 * time.Second

// Local runs commands on the host through "sh -c".
type Local struct {
	Shell     string
	MaxOutput int
	logger    *slog.Logger
}

// NewLocal creates a host executor. maxOutput <= 0 selects DefaultMaxOutput.
func NewLocal(logger *slog.Logger, maxOutput int) *Local {
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}

	return &Local{
		Shell:     "sh",
		MaxOutput: maxOutput,
		logger:    logger.With("module", "executor"),
	}
}

func (l *Local) Execute(ctx context.Context, cmd Command) (*Result, error) {
	process := exec.CommandContext(ctx, l.Shell, "-c", cmd.Line)
	process.Dir = cmd.Dir
	process.WaitDelay = waitDelay

	if len(cmd.Env) > 0 {
		process.Env = append(os.Environ(), cmd.Env...)
	}

	stdout := &limitedBuffer{limit: l.MaxOutput}
	stderr := &limitedBuffer{limit: l.MaxOutput}
	process.Stdout = stdout
	process.Stderr = stderr

	l.logger.DebugContext(ctx, "Starting process", "command", cmd.Line, "dir", cmd.Dir)

	err := process.Run()

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			result.ExitCode = exitErr.ExitCode()

			l.logger.DebugContext(ctx, "Process exited with non-zero status", "command", cmd.Line, "exit_code", result.ExitCode)

			return result, nil
		}

		if ctx.Err() != nil {
			return result, fmt.Errorf("process interrupted: %w", ctx.Err())
		}

		return nil, fmt.Errorf("failed to run %q: %w", cmd.Line, err)
	}

	return result, nil
}

// limitedBuffer keeps the first limit bytes written and discards the rest.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true

		return len(p), nil
	}

	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true

		return len(p), nil
	}

	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}

	return b.buf.String()
}
