package filesearch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestGrepFindsLines(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.go":     "package a\n\nfunc Hello() {}\n",
		"sub/b.go": "package b\n\n// Hello again\n",
		"c.txt":    "nothing here\n",
	})

	matches, err := Grep(context.Background(), root, "Hello", 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Contains(t, m.Text, "Hello")
		assert.NotZero(t, m.Line)
	}
}

func TestGrepInvalidPattern(t *testing.T) {
	_, err := Grep(context.Background(), t.TempDir(), "(", 0)
	assert.Error(t, err)
}

func TestGrepHonorsMatchBudget(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt": "x\nx\nx\nx\nx\n",
	})

	matches, err := Grep(context.Background(), root, "x", 3)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestGrepSkipsBinaryFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin.dat"), []byte("match\x00match\n"), 0o644))
	writeTree(t, root, map[string]string{"ok.txt": "match\n"})

	matches, err := Grep(context.Background(), root, "match", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "ok.txt", matches[0].Path)
}

func TestGrepHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":    "vendor/\n*.log\n!keep.log\n",
		"main.go":       "needle\n",
		"vendor/dep.go": "needle\n",
		"debug.log":     "needle\n",
		"keep.log":      "needle\n",
		"sub/other.log": "needle\n",
	})

	matches, err := Grep(context.Background(), root, "needle", 0)
	require.NoError(t, err)

	found := map[string]bool{}
	for _, m := range matches {
		found[m.Path] = true
	}
	assert.True(t, found["main.go"])
	assert.True(t, found["keep.log"], "negated pattern should re-include keep.log")
	assert.False(t, found[filepath.Join("vendor", "dep.go")])
	assert.False(t, found["debug.log"])
	assert.False(t, found[filepath.Join("sub", "other.log")], "*.log matches at any depth")
}

func TestIgnoreListRules(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"),
		[]byte("/build\n**/generated\ndata?.csv\n"), 0o644))
	l := LoadIgnore(root)

	assert.True(t, l.Ignored("build", true))
	assert.False(t, l.Ignored("src/build", true), "leading / anchors to the root")
	assert.True(t, l.Ignored("x/y/generated", true))
	assert.True(t, l.Ignored("data1.csv", false))
	assert.False(t, l.Ignored("data12.csv", false))
}

func TestIgnoreListMissingFile(t *testing.T) {
	l := LoadIgnore(t.TempDir())
	assert.False(t, l.Ignored("anything", false))
}
