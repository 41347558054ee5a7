// Package executor defines the process execution capability used to install tools and run workflow steps.
package executor

import "context"

// Command describes a process to start.
type Command struct {
	Line string   // Shell command line
	Dir  string   // Working directory, empty for the current one
	Env  []string // Extra "KEY=value" entries appended to the process environment
}

// Result is the outcome of a process that started and exited.
type Result struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Success reports whether the process exited with status zero.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Executor starts a process and waits for it.
// An error is returned only when the process could not be started or awaited;
// a non-zero exit is reported through Result.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*Result, error)
}

// Func adapts a function to the Executor interface.
type Func func(ctx context.Context, cmd Command) (*Result, error)

func (f Func) Execute(ctx context.Context, cmd Command) (*Result, error) {
	return f(ctx, cmd)
}
