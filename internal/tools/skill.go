package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// SkillTool returns the contents of a project markdown file (default
// SKILL.md) under cwd — the same file the prompt builder injects as the
// "skill" system message, made directly readable by the model on demand.
type SkillTool struct{}

type skillArgs struct {
	File string `json:"file,omitempty"`
}

const defaultSkillFile = "SKILL.md"

func (SkillTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "skill",
		Description: "Return the contents of a project markdown file (default SKILL.md) under the project root.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"file": {"type": "string", "description": "File to read, relative to the project root. Defaults to SKILL.md."}
			}
		}`),
		Class: "read",
	}
}

func (SkillTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a skillArgs
	if err := unmarshalArgs("skill", args, &a); err != nil {
		return "", err
	}
	file := a.File
	if file == "" {
		file = defaultSkillFile
	}
	abs, err := resolvePath(tc.Cwd, file)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("(%s not found)", filepath.Base(abs)), nil
		}
		return "", fmt.Errorf("skill: %w", err)
	}
	return string(content), nil
}
