package command

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waysongjiang/pyopencode/internal/config"
)

func writeCommand(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestParseFrontMatter(t *testing.T) {
	meta, body := parseFrontMatter("---\ndescription: fix a bug\nagent: build\nmax_steps: 30\n---\nFix {{target}} please.\n")
	assert.Equal(t, "fix a bug", meta.Description)
	assert.Equal(t, "build", meta.Agent)
	assert.Equal(t, 30, meta.MaxSteps)
	assert.Equal(t, "Fix {{target}} please.\n", body)
}

func TestParseFrontMatterAbsent(t *testing.T) {
	meta, body := parseFrontMatter("just a prompt")
	assert.Equal(t, frontMatter{}, meta)
	assert.Equal(t, "just a prompt", body)
}

func TestParseFrontMatterMalformedBlockIsBody(t *testing.T) {
	text := "---\n[not yaml\n---\nbody"
	meta, body := parseFrontMatter(text)
	assert.Equal(t, frontMatter{}, meta)
	assert.Equal(t, text, body)
}

func TestDiscoverMergeOrder(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	globalCmds := filepath.Join(home, ".config", "pyopencode", "commands")
	writeCommand(t, globalCmds, "review.md", "---\ndescription: global review\n---\nglobal body")
	writeCommand(t, globalCmds, "lint.md", "lint body")

	project := t.TempDir()
	writeCommand(t, filepath.Join(project, ".pyopencode", "commands"), "review.md", "---\ndescription: project review\n---\nproject body")

	behavior := &config.Behavior{Commands: map[string]config.CommandConfig{
		"lint": {Description: "inline lint", Prompt: "inline body"},
	}}

	cmds := Discover(project, behavior)
	require.Len(t, cmds, 2)
	assert.Equal(t, "project review", cmds["review"].Description)
	assert.Equal(t, "inline lint", cmds["lint"].Description)
	assert.Equal(t, "inline body", cmds["lint"].Prompt)
}

func TestLoadUnknown(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := Load(t.TempDir(), "nope", nil)
	assert.ErrorContains(t, err, "unknown command")
}

func TestRenderPlaceholders(t *testing.T) {
	s := Spec{Prompt: "Refactor {{file}} to use {{style}}. Keep {{file}} compiling. {{unset}} stays."}
	out := s.Render(map[string]string{"file": "main.go", "style": "options"})
	assert.Equal(t, "Refactor main.go to use options. Keep main.go compiling. {{unset}} stays.", out)
}
