package models

import (
	"strings"
	"time"
)

// InstallMethod selects how a tool is materialized on disk.
type InstallMethod string

const (
	InstallMethodGit InstallMethod = "git" // Clone the repository, build when it is a Go module
	InstallMethodGo  InstallMethod = "go"  // go install <module>@latest
)

// ToolStatus represents the installation lifecycle state of a tool.
type ToolStatus string

const (
	ToolStatusPending    ToolStatus = "pending"
	ToolStatusInstalling ToolStatus = "installing"
	ToolStatusReady      ToolStatus = "ready"
	ToolStatusError      ToolStatus = "error"
)

// Tool is an external security utility tracked through its installation lifecycle.
type Tool struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Repository     string        `json:"repository"                validate:"required,repository"`
	Description    string        `json:"description"`
	InstallMethod  InstallMethod `json:"install_method"            validate:"required,oneof=git go"`
	InstallCommand string        `json:"install_command,omitempty"`
	InstallPath    string        `json:"install_path,omitempty"`
	Status         ToolStatus    `json:"status"`
	Error          string        `json:"error,omitempty"`
	Sequence       int64         `json:"sequence"` // Registration order
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Clone returns a copy that can be handed out without sharing state.
func (t *Tool) Clone() *Tool {
	if t == nil {
		return nil
	}

	c := *t

	return &c
}

var toolTransitions = map[ToolStatus][]ToolStatus{
	ToolStatusPending:    {ToolStatusInstalling},
	ToolStatusInstalling: {ToolStatusReady, ToolStatusError},
	ToolStatusError:      {ToolStatusInstalling, ToolStatusPending},
}

// CanTransition reports whether a tool may move from one status to another.
func CanTransition(from, to ToolStatus) bool {
	for _, next := range toolTransitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// NormalizeRepository reduces a repository reference to its "owner/repo" form.
// A trailing "@version" is kept.
func NormalizeRepository(repository string) string {
	r := strings.TrimSpace(repository)
	for _, prefix := range []string{"https://", "http://", "git@"} {
		r = strings.TrimPrefix(r, prefix)
	}

	r = strings.Replace(r, "github.com:", "github.com/", 1)
	r = strings.TrimPrefix(r, "github.com/")
	r = strings.TrimRight(r, "/")
	r = strings.TrimSuffix(r, ".git")

	return r
}

// ToolNameFromRepository returns the last path segment of a repository reference.
func ToolNameFromRepository(repository string) string {
	r := NormalizeRepository(repository)
	if at := strings.LastIndex(r, "@"); at > 0 {
		r = r[:at]
	}

	if slash := strings.LastIndex(r, "/"); slash >= 0 {
		return r[slash+1:]
	}

	return r
}
