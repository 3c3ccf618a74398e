package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadProviders(t *testing.T) {
	t.Setenv("TEST_PROVIDER_KEY", "sk-secret")
	path := writeFile(t, t.TempDir(), "pyopencode.yaml", `
providers:
  deepseek:
    PYOPENCODE_BASE_URL: https://api.deepseek.com/v1
    PYOPENCODE_MODEL: deepseek-chat
    PYOPENCODE_API_KEY: ${TEST_PROVIDER_KEY}
    PYOPENCODE_FORCE_REASONING: true
  local:
    PYOPENCODE_BASE_URL: http://localhost:8000/v1
    PYOPENCODE_MODEL: qwen3
    PYOPENCODE_API_KEY: none
`)

	reg, err := LoadProviders(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"deepseek", "local"}, reg.Names())

	cfg, err := reg.Get("DeepSeek")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", cfg.APIKey)
	assert.Equal(t, "deepseek-chat", cfg.Model)
	assert.True(t, cfg.ForceReasoning)
	assert.False(t, cfg.IncludeReasoning)

	_, err = reg.Get("nope")
	assert.ErrorContains(t, err, "unknown provider")
}

func TestLoadProvidersUnresolvedPlaceholderIsFatal(t *testing.T) {
	os.Unsetenv("DEFINITELY_NOT_SET_12345")
	path := writeFile(t, t.TempDir(), "p.yaml", `
providers:
  x:
    PYOPENCODE_BASE_URL: http://h/v1
    PYOPENCODE_MODEL: m
    PYOPENCODE_API_KEY: ${DEFINITELY_NOT_SET_12345}
`)
	_, err := LoadProviders(path)
	assert.ErrorContains(t, err, "DEFINITELY_NOT_SET_12345")
}

func TestLoadProvidersMissingFields(t *testing.T) {
	path := writeFile(t, t.TempDir(), "p.yaml", `
providers:
  x:
    PYOPENCODE_MODEL: m
`)
	_, err := LoadProviders(path)
	assert.ErrorContains(t, err, "PYOPENCODE_BASE_URL")
	assert.ErrorContains(t, err, "PYOPENCODE_API_KEY")
}

func TestLoadBehaviorMergeOrder(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	globalDir := filepath.Join(home, ".config", "pyopencode")
	require.NoError(t, os.MkdirAll(globalDir, 0o755))
	writeFile(t, globalDir, "pyopencode.json", `{
		"default_agent": "plan",
		"permissions": [{"match": "bash", "decision": "deny"}],
		"agents": {"g": {"description": "from global", "system_prompt": "gp"}}
	}`)

	project := t.TempDir()
	writeFile(t, project, "pyopencode.json", `{
		"agents": {"g": {"description": "from project"}},
		"mcp_servers": {"fs": {"command": ["mcp-fs", "--root", "."]}}
	}`)

	b, err := LoadBehavior(project, "")
	require.NoError(t, err)
	assert.Equal(t, "plan", b.DefaultAgent)
	// Project overrides the description but the global system_prompt
	// survives the deep merge.
	assert.Equal(t, "from project", b.Agents["g"].Description)
	assert.Equal(t, "gp", b.Agents["g"].SystemPrompt)
	assert.Equal(t, []string{"mcp-fs", "--root", "."}, b.MCPServers["fs"].Command)
	require.Len(t, b.Permissions, 1)
	assert.Equal(t, "deny", b.Permissions[0].Decision)
}

func TestLoadBehaviorExplicitPathRequired(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := LoadBehavior(t.TempDir(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadBehaviorDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	b, err := LoadBehavior(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, "general", b.DefaultAgent)
	assert.Equal(t, 24, b.CacheTTLOrDefault())
}

func TestLoadBehaviorRulesFilesResolvedAgainstCwd(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	project := t.TempDir()
	writeFile(t, project, ".pyopencode.json", `{"rules_files": ["docs/STYLE.md"]}`)
	b, err := LoadBehavior(project, "")
	require.NoError(t, err)
	require.Len(t, b.RulesFiles, 1)
	assert.Equal(t, filepath.Join(project, "docs", "STYLE.md"), b.RulesFiles[0])
}
