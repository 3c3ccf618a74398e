package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/waysongjiang/pyopencode/internal/delta"
	"github.com/waysongjiang/pyopencode/internal/hashline"
)

// --- edit ---

// EditTool replaces a 1-based inclusive line range with new text, preserving
// whether the file ends in a trailing newline.
type EditTool struct {
	Deltas *delta.Tracker // optional; nil disables undo recording
	Notify *FileChangeNotifier
}

type editArgs struct {
	Path      string `json:"path"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	NewText   string `json:"new_text"`
	StartHash string `json:"start_hash,omitempty"`
	EndHash   string `json:"end_hash,omitempty"`
	Annotate  bool   `json:"annotate,omitempty"`
}

func (t EditTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "edit",
		Description: "Replace a 1-based inclusive line range in a file with new text.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"path":     {"type": "string", "description": "Path to the file, relative to the project root."},
				"start":    {"type": "integer", "description": "1-based inclusive start line to replace."},
				"end":      {"type": "integer", "description": "1-based inclusive end line to replace."},
				"new_text":   {"type": "string", "description": "Replacement text (without a trailing newline unless you want a blank line after)."},
				"start_hash": {"type": "string", "description": "Optional line hash from an annotated read; the edit is rejected if the start line changed since."},
				"end_hash":   {"type": "string", "description": "Optional line hash for the end line."},
				"annotate":   {"type": "boolean", "description": "Return the edited region hash-tagged instead of literal."}
			},
			"required": ["path", "start", "end", "new_text"]
		}`),
		Class: "edit",
	}
}

func (t EditTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a editArgs
	if err := unmarshalArgs("edit", args, &a); err != nil {
		return "", err
	}
	if a.Path == "" {
		return "", fmt.Errorf("edit: path is required")
	}
	abs, err := resolvePath(tc.Cwd, a.Path)
	if err != nil {
		return "", err
	}
	before, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("edit: %w", err)
	}

	fileLines := strings.Split(strings.TrimSuffix(string(before), "\n"), "\n")
	if err := hashline.CheckAnchor(fileLines, a.Start, a.StartHash); err != nil {
		return "", fmt.Errorf("edit: %w", err)
	}
	if err := hashline.CheckAnchor(fileLines, a.End, a.EndHash); err != nil {
		return "", fmt.Errorf("edit: %w", err)
	}

	after, err := applyLineEdit(string(before), a.Start, a.End, a.NewText)
	if err != nil {
		return "", fmt.Errorf("edit: %w", err)
	}

	if err := os.WriteFile(abs, []byte(after), 0o644); err != nil {
		return "", fmt.Errorf("edit: %w", err)
	}
	recordDelta(t.Deltas, abs, string(before))
	t.Notify.changed(ctx, abs)

	if !a.Annotate {
		return fmt.Sprintf("edited %s lines %d-%d", a.Path, a.Start, a.End), nil
	}

	afterLines := strings.Split(after, "\n")
	newLineCount := len(strings.Split(a.NewText, "\n"))
	region, _, err := selectLineRange(afterLines, a.Start, a.Start+newLineCount-1)
	if err != nil {
		return fmt.Sprintf("edited %s lines %d-%d", a.Path, a.Start, a.End), nil
	}
	return hashline.FormatTagged(hashline.TagLines(region, a.Start)), nil
}

// applyLineEdit replaces lines [start,end] (1-based inclusive) of content
// with newText, preserving a trailing-newline-or-not file shape.
func applyLineEdit(content string, start, end int, newText string) (string, error) {
	trailingNewline := strings.HasSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	if trailingNewline {
		lines = lines[:len(lines)-1]
	}
	if start < 1 || start > len(lines) {
		return "", fmt.Errorf("start line %d out of range (file has %d lines)", start, len(lines))
	}
	if end < start || end > len(lines) {
		return "", fmt.Errorf("end line %d out of range (file has %d lines)", end, len(lines))
	}

	replacement := strings.Split(newText, "\n")
	out := make([]string, 0, len(lines)-(end-start+1)+len(replacement))
	out = append(out, lines[:start-1]...)
	out = append(out, replacement...)
	out = append(out, lines[end:]...)

	result := strings.Join(out, "\n")
	if trailingNewline {
		result += "\n"
	}
	return result, nil
}

// recordDelta stashes a file's pre-image with the delta tracker, keyed by
// absolute path (the tracker restores via os.WriteFile on undo, so it must
// be able to find the file without re-resolving against a root).
func recordDelta(tr *delta.Tracker, absPath, preimage string) {
	if tr == nil {
		return
	}
	tr.RecordModify(absPath, []byte(preimage))
}

// --- multiedit ---

// MultiEditTool applies several line-range edits to one file atomically:
// the edits must arrive sorted by start line and non-overlapping, and every
// edit is validated before any of them is written.
type MultiEditTool struct {
	Deltas *delta.Tracker
	Notify *FileChangeNotifier
}

type multiEditOp struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	NewText string `json:"new_text"`
}

type multiEditArgs struct {
	Path  string        `json:"path"`
	Edits []multiEditOp `json:"edits"`
}

func (t MultiEditTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "multiedit",
		Description: "Apply several 1-based inclusive line-range edits to one file, all-or-nothing. Edits must be sorted by start line and non-overlapping.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Path to the file, relative to the project root."},
				"edits": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"start":    {"type": "integer"},
							"end":      {"type": "integer"},
							"new_text": {"type": "string"}
						},
						"required": ["start", "end", "new_text"]
					}
				}
			},
			"required": ["path", "edits"]
		}`),
		Class: "edit",
	}
}

func (t MultiEditTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a multiEditArgs
	if err := unmarshalArgs("multiedit", args, &a); err != nil {
		return "", err
	}
	if a.Path == "" {
		return "", fmt.Errorf("multiedit: path is required")
	}
	if len(a.Edits) == 0 {
		return "", fmt.Errorf("multiedit: at least one edit is required")
	}
	abs, err := resolvePath(tc.Cwd, a.Path)
	if err != nil {
		return "", err
	}
	before, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("multiedit: %w", err)
	}

	edits := a.Edits
	for i := 1; i < len(edits); i++ {
		if edits[i].Start < edits[i-1].Start {
			return "", fmt.Errorf("multiedit: edits must be sorted by start line (edit %d starts at line %d, before line %d)",
				i+1, edits[i].Start, edits[i-1].Start)
		}
		if edits[i].Start <= edits[i-1].End {
			return "", fmt.Errorf("multiedit: edits overlap (lines %d-%d and %d-%d)",
				edits[i-1].Start, edits[i-1].End, edits[i].Start, edits[i].End)
		}
	}

	content := string(before)
	// Apply bottom-up so earlier-edit line numbers stay valid.
	for i := len(edits) - 1; i >= 0; i-- {
		content, err = applyLineEdit(content, edits[i].Start, edits[i].End, edits[i].NewText)
		if err != nil {
			return "", fmt.Errorf("multiedit: edit %d: %w", i+1, err)
		}
	}

	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("multiedit: %w", err)
	}
	recordDelta(t.Deltas, abs, string(before))
	t.Notify.changed(ctx, abs)

	return fmt.Sprintf("applied %d edits to %s", len(edits), a.Path), nil
}

// --- patch ---

// PatchTool applies a unified diff to the working tree, preferring `git
// apply` and falling back to the POSIX `patch` command.
type PatchTool struct {
	Deltas *delta.Tracker
	Notify *FileChangeNotifier
}

type patchArgs struct {
	Diff string `json:"diff"`
}

func (t PatchTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "patch",
		Description: "Apply a unified diff to the working tree.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"diff": {"type": "string", "description": "Unified diff text."}
			},
			"required": ["diff"]
		}`),
		Class: "edit",
	}
}

func (t PatchTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a patchArgs
	if err := unmarshalArgs("patch", args, &a); err != nil {
		return "", err
	}
	if strings.TrimSpace(a.Diff) == "" {
		return "", fmt.Errorf("patch: diff is required")
	}

	affected := affectedPaths(a.Diff)
	preimages := make(map[string]string, len(affected))
	for _, p := range affected {
		abs, err := resolvePath(tc.Cwd, p)
		if err != nil {
			continue
		}
		if content, err := os.ReadFile(abs); err == nil {
			preimages[abs] = string(content)
		}
	}

	out, err := applyPatchGitFirst(ctx, tc.Cwd, a.Diff)
	if err != nil {
		return "", fmt.Errorf("patch: %w: %s", err, out)
	}

	for abs, pre := range preimages {
		recordDelta(t.Deltas, abs, pre)
		t.Notify.changed(ctx, abs)
	}

	return "patch applied", nil
}

// affectedPaths extracts the "+++ b/path" target paths from a unified diff.
func affectedPaths(diff string) []string {
	var paths []string
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+++ ") {
			p := strings.TrimPrefix(line, "+++ ")
			p = strings.TrimPrefix(p, "b/")
			p = strings.TrimSpace(p)
			if p != "" && p != "/dev/null" {
				paths = append(paths, p)
			}
		}
	}
	return paths
}

// applyPatchGitFirst tries `git apply` and falls back to the `patch`
// command. git's apply has more forgiving fuzzy-context matching, so it
// goes first.
func applyPatchGitFirst(ctx context.Context, cwd, diff string) (string, error) {
	if out, err := runWithStdin(ctx, cwd, "git", []string{"apply", "--whitespace=nowarn"}, diff); err == nil {
		return out, nil
	}
	out, err := runWithStdin(ctx, cwd, "patch", []string{"-p1", "--no-backup-if-mismatch"}, diff)
	return out, err
}

func runWithStdin(ctx context.Context, cwd, name string, args []string, stdin string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = cwd
	cmd.Stdin = strings.NewReader(stdin)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}
