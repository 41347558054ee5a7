// Package executortest provides a scriptable executor for tests.
package executortest

import (
	"context"
	"errors"
	"sync"

	"github.com/dukex/toolflow/pkg/executor"
)

// ErrNotStarted is returned for commands scripted to fail before starting.
var ErrNotStarted = errors.New("process could not be started")

// Response scripts the behaviour of a command.
type Response struct {
	Result *executor.Result
	Err    error
	Block  <-chan struct{} // When set, Execute waits for it (or ctx) before answering
}

// Fake records every command and answers from a script keyed by command line.
// Unscripted commands succeed with empty output.
type Fake struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []executor.Command
	started   chan executor.Command
}

func New() *Fake {
	return &Fake{
		responses: make(map[string]Response),
		started:   make(chan executor.Command, 64),
	}
}

// On scripts the response for a command line.
func (f *Fake) On(line string, response Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.responses[line] = response

	return f
}

// Exit scripts a command line to exit with the given code and output.
func (f *Fake) Exit(line string, code int, stdout, stderr string) *Fake {
	return f.On(line, Response{Result: &executor.Result{ExitCode: code, Stdout: stdout, Stderr: stderr}})
}

// Fail scripts a command line to fail to start.
func (f *Fake) Fail(line string) *Fake {
	return f.On(line, Response{Err: ErrNotStarted})
}

// Started delivers each command as soon as Execute receives it.
func (f *Fake) Started() <-chan executor.Command {
	return f.started
}

// Calls returns the commands executed so far, in order.
func (f *Fake) Calls() []executor.Command {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]executor.Command(nil), f.calls...)
}

// Lines returns the command lines executed so far, in order.
func (f *Fake) Lines() []string {
	calls := f.Calls()

	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.Line
	}

	return lines
}

func (f *Fake) Execute(ctx context.Context, cmd executor.Command) (*executor.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	response, ok := f.responses[cmd.Line]
	f.mu.Unlock()

	select {
	case f.started <- cmd:
	default:
	}

	if ok && response.Block != nil {
		select {
		case <-response.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !ok {
		return &executor.Result{}, nil
	}

	if response.Err != nil {
		return nil, response.Err
	}

	if response.Result == nil {
		return &executor.Result{}, nil
	}

	result := *response.Result

	return &result, nil
}
