package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/waysongjiang/pyopencode/internal/delta"
	"github.com/waysongjiang/pyopencode/internal/shell"
)

// BashTool runs a command string through the in-process POSIX interpreter,
// returning combined stdout/stderr and the exit code, with a timeout.
// Defense-in-depth command blocking happens inside the shell itself; the
// permission engine decides whether to run the shell at all.
type BashTool struct {
	Shell   *shell.Shell
	Deltas  *delta.Tracker
	Timeout time.Duration
}

const defaultBashTimeout = 120 * time.Second

func NewBashTool(sh *shell.Shell, deltas *delta.Tracker) *BashTool {
	return &BashTool{Shell: sh, Deltas: deltas, Timeout: defaultBashTimeout}
}

type bashArgs struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout_seconds,omitempty"`
}

func (t *BashTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "bash",
		Description: "Run a command string through a real shell with a timeout. Returns stdout, stderr, and the exit code.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"command":         {"type": "string", "description": "Shell command to run."},
				"timeout_seconds": {"type": "integer", "description": "Override the default 120s timeout."}
			},
			"required": ["command"]
		}`),
		Class: "bash",
	}
}

func (t *BashTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a bashArgs
	if err := unmarshalArgs("bash", args, &a); err != nil {
		return "", err
	}
	if a.Command == "" {
		return "", fmt.Errorf("bash: command is required")
	}

	timeout := t.Timeout
	if a.Timeout > 0 {
		timeout = time.Duration(a.Timeout) * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var pre map[string]delta.TreeFile
	if t.Deltas != nil {
		pre = delta.CaptureTree(t.Shell.Dir())
	}

	stdout, stderr, err := t.Shell.Exec(cctx, a.Command)
	exitCode := shell.ExitCode(err)

	if t.Deltas != nil {
		t.Deltas.RecordTreeChanges(t.Shell.Dir(), pre)
	}

	result := fmt.Sprintf("exit code: %d\nstdout:\n%s\nstderr:\n%s", exitCode, stdout, stderr)
	if err != nil && exitCode == 1 && stderr == "" && stdout == "" {
		return "", fmt.Errorf("bash: %w", err)
	}
	return result, nil
}
