package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ToolStatus
		allowed  bool
	}{
		{ToolStatusPending, ToolStatusInstalling, true},
		{ToolStatusInstalling, ToolStatusReady, true},
		{ToolStatusInstalling, ToolStatusError, true},
		{ToolStatusError, ToolStatusInstalling, true},
		{ToolStatusError, ToolStatusPending, true},
		{ToolStatusPending, ToolStatusReady, false},
		{ToolStatusReady, ToolStatusInstalling, false},
		{ToolStatusReady, ToolStatusPending, false},
		{ToolStatusInstalling, ToolStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestNormalizeRepository(t *testing.T) {
	tests := map[string]string{
		"projectdiscovery/httpx":                     "projectdiscovery/httpx",
		"https://github.com/projectdiscovery/httpx":  "projectdiscovery/httpx",
		"github.com/projectdiscovery/httpx/":         "projectdiscovery/httpx",
		"git@github.com:projectdiscovery/httpx.git":  "projectdiscovery/httpx",
		"  projectdiscovery/httpx/cmd/httpx@v1.6.0 ": "projectdiscovery/httpx/cmd/httpx@v1.6.0",
	}

	for input, expected := range tests {
		assert.Equal(t, expected, NormalizeRepository(input), input)
	}
}

func TestToolNameFromRepository(t *testing.T) {
	assert.Equal(t, "httpx", ToolNameFromRepository("https://github.com/projectdiscovery/httpx.git"))
	assert.Equal(t, "httpx", ToolNameFromRepository("projectdiscovery/httpx/cmd/httpx@latest"))
	assert.Equal(t, "nmap", ToolNameFromRepository("nmap"))
}

func TestTool_Clone(t *testing.T) {
	var nilTool *Tool
	assert.Nil(t, nilTool.Clone())

	tool := &Tool{ID: "t1", Name: "httpx", Status: ToolStatusReady}
	clone := tool.Clone()
	clone.Status = ToolStatusError

	assert.Equal(t, ToolStatusReady, tool.Status)
}

func TestWorkflow_CloneIsDeep(t *testing.T) {
	wf := &Workflow{
		ID:    "w1",
		Name:  "recon",
		Steps: []*WorkflowStep{{ID: "s1", Tool: "subfinder", Command: "subfinder -d example.com"}},
	}

	clone := wf.Clone()
	clone.Steps[0].Command = "changed"
	clone.Steps = append(clone.Steps, &WorkflowStep{ID: "s2"})

	assert.Equal(t, "subfinder -d example.com", wf.Steps[0].Command)
	assert.Len(t, wf.Steps, 1)
}

func TestWorkflow_StepIndex(t *testing.T) {
	wf := &Workflow{Steps: []*WorkflowStep{{ID: "a"}, {ID: "b"}}}

	assert.Equal(t, 0, wf.StepIndex("a"))
	assert.Equal(t, 1, wf.StepIndex("b"))
	assert.Equal(t, -1, wf.StepIndex("missing"))
}

func TestWorkflowRunReport_Clone(t *testing.T) {
	finished := time.Now()
	report := &WorkflowRunReport{
		ID:         "r1",
		Status:     RunStatusFailed,
		Steps:      []StepOutcome{{StepID: "s1", Status: StepStatusFailed, ExitCode: 2}},
		FinishedAt: &finished,
	}

	clone := report.Clone()
	clone.Steps[0].ExitCode = 0
	*clone.FinishedAt = finished.Add(time.Hour)

	require.Len(t, report.Steps, 1)
	assert.Equal(t, 2, report.Steps[0].ExitCode)
	assert.Equal(t, finished, *report.FinishedAt)
	assert.True(t, report.Done())
	assert.False(t, (&WorkflowRunReport{Status: RunStatusRunning}).Done())
	assert.False(t, report.Steps[0].Succeeded())
}
