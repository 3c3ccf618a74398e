package tools

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waysongjiang/pyopencode/internal/hashline"
)

func args(t *testing.T, v interface{}) Value {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func testCtx(cwd string) Context {
	return Context{Cwd: cwd, SessionID: "test"}
}

func TestWriteReadRoundTrip(t *testing.T) {
	cwd := t.TempDir()

	out, err := WriteTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]string{"path": "a.txt", "content": "hello\nworld\n"}))
	require.NoError(t, err)
	assert.Contains(t, out, "a.txt")

	got, err := ReadTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]string{"path": "a.txt"}))
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", got)
}

func TestEditReplacesLineRange(t *testing.T) {
	cwd := t.TempDir()
	path := filepath.Join(cwd, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\nworld\n"), 0o644))

	_, err := EditTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]interface{}{"path": "a.txt", "start": 2, "end": 2, "new_text": "WORLD"}))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\nWORLD\n", string(data))
}

func TestEditLastLineAndBeyondEOF(t *testing.T) {
	cwd := t.TempDir()
	path := filepath.Join(cwd, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))

	// Editing exactly line N of an N-line file works.
	_, err := EditTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]interface{}{"path": "a.txt", "start": 3, "end": 3, "new_text": "THREE"}))
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "one\ntwo\nTHREE\n", string(data))

	// Editing beyond EOF fails cleanly and writes nothing.
	_, err = EditTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]interface{}{"path": "a.txt", "start": 4, "end": 4, "new_text": "x"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
	data, _ = os.ReadFile(path)
	assert.Equal(t, "one\ntwo\nTHREE\n", string(data))
}

func TestEditPreservesMissingTrailingNewline(t *testing.T) {
	cwd := t.TempDir()
	path := filepath.Join(cwd, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\nworld"), 0o644))

	_, err := EditTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]interface{}{"path": "a.txt", "start": 1, "end": 1, "new_text": "HELLO"}))
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "HELLO\nworld", string(data))
}

func TestEditChecksLineHashes(t *testing.T) {
	cwd := t.TempDir()
	path := filepath.Join(cwd, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\nworld\n"), 0o644))

	// A stale hash rejects the edit before anything is written.
	_, err := EditTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]interface{}{"path": "a.txt", "start": 2, "end": 2, "new_text": "X", "start_hash": "ff"}))
	require.Error(t, err)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "hello\nworld\n", string(data))

	// The hash of the current content passes.
	_, err = EditTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]interface{}{"path": "a.txt", "start": 2, "end": 2, "new_text": "WORLD",
			"start_hash": hashline.Hash("world"), "end_hash": hashline.Hash("world")}))
	require.NoError(t, err)
	data, _ = os.ReadFile(path)
	assert.Equal(t, "hello\nWORLD\n", string(data))
}

func TestMultiEditOverlapFailsBeforeAnyWrite(t *testing.T) {
	cwd := t.TempDir()
	path := filepath.Join(cwd, "a.txt")
	original := "l1\nl2\nl3\nl4\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	_, err := MultiEditTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]interface{}{"path": "a.txt", "edits": []map[string]interface{}{
			{"start": 1, "end": 2, "new_text": "a"},
			{"start": 2, "end": 3, "new_text": "b"},
		}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap")

	data, _ := os.ReadFile(path)
	assert.Equal(t, original, string(data))
}

func TestMultiEditRejectsUnsortedBeforeAnyWrite(t *testing.T) {
	cwd := t.TempDir()
	path := filepath.Join(cwd, "a.txt")
	original := "l1\nl2\nl3\nl4\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	_, err := MultiEditTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]interface{}{"path": "a.txt", "edits": []map[string]interface{}{
			{"start": 4, "end": 4, "new_text": "L4"},
			{"start": 1, "end": 2, "new_text": "L12"},
		}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sorted")

	data, _ := os.ReadFile(path)
	assert.Equal(t, original, string(data))
}

func TestMultiEditAppliesSortedEdits(t *testing.T) {
	cwd := t.TempDir()
	path := filepath.Join(cwd, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("l1\nl2\nl3\nl4\n"), 0o644))

	_, err := MultiEditTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]interface{}{"path": "a.txt", "edits": []map[string]interface{}{
			{"start": 1, "end": 2, "new_text": "L12"},
			{"start": 4, "end": 4, "new_text": "L4"},
		}}))
	require.NoError(t, err)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "L12\nl3\nL4\n", string(data))
}

func TestPatchAppliesUnifiedDiff(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	cwd := t.TempDir()
	run := func(cmdArgs ...string) {
		c := exec.Command(cmdArgs[0], cmdArgs[1:]...)
		c.Dir = cwd
		require.NoError(t, c.Run(), strings.Join(cmdArgs, " "))
	}
	run("git", "init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "a.txt"), []byte("hello\nWORLD\n"), 0o644))

	diff := `--- a/a.txt
+++ b/a.txt
@@ -1,2 +1,2 @@
-hello
-WORLD
+hello!!!
+WORLD!!!
`
	_, err := PatchTool{}.Execute(context.Background(), testCtx(cwd), args(t, map[string]string{"diff": diff}))
	require.NoError(t, err)

	data, _ := os.ReadFile(filepath.Join(cwd, "a.txt"))
	assert.Equal(t, "hello!!!\nWORLD!!!\n", string(data))
}

func TestPathEscapeRejected(t *testing.T) {
	cwd := t.TempDir()

	_, err := ReadTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]string{"path": "../outside.txt"}))
	assert.ErrorIs(t, err, ErrPathEscape)

	_, err = WriteTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]string{"path": "/etc/hostile", "content": "x"}))
	assert.ErrorIs(t, err, ErrPathEscape)

	// An absolute path inside the root is fine.
	_, err = WriteTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]string{"path": filepath.Join(cwd, "ok.txt"), "content": "x"}))
	assert.NoError(t, err)
}

func TestSymlinkEscapeRejected(t *testing.T) {
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0o644))
	cwd := t.TempDir()

	// A symlink inside the root pointing at a file outside it.
	require.NoError(t, os.Symlink(secret, filepath.Join(cwd, "link.txt")))
	_, err := ReadTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]string{"path": "link.txt"}))
	assert.ErrorIs(t, err, ErrPathEscape)
	_, err = WriteTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]string{"path": "link.txt", "content": "x"}))
	assert.ErrorIs(t, err, ErrPathEscape)

	// A symlinked directory escapes too, including not-yet-created files
	// under it.
	require.NoError(t, os.Symlink(outside, filepath.Join(cwd, "linkdir")))
	_, err = ReadTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]string{"path": "linkdir/secret.txt"}))
	assert.ErrorIs(t, err, ErrPathEscape)
	_, err = WriteTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]string{"path": "linkdir/new.txt", "content": "x"}))
	assert.ErrorIs(t, err, ErrPathEscape)

	// A symlink that stays inside the root is fine.
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "real.txt"), []byte("ok"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(cwd, "real.txt"), filepath.Join(cwd, "alias.txt")))
	got, err := ReadTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]string{"path": "alias.txt"}))
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestReadLineRangeAndCap(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "a.txt"), []byte("l1\nl2\nl3\nl4\nl5\n"), 0o644))

	got, err := ReadTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]interface{}{"path": "a.txt", "start": 2, "end": 4}))
	require.NoError(t, err)
	assert.Equal(t, "l2\nl3\nl4", got)

	_, err = ReadTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]interface{}{"path": "a.txt", "start": 9}))
	assert.Error(t, err)

	long := strings.Repeat("x", 500)
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "big.txt"), []byte(long), 0o644))
	got, err = ReadTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]interface{}{"path": "big.txt", "max_chars": 100}))
	require.NoError(t, err)
	assert.Contains(t, got, "...[truncated]...")
	assert.LessOrEqual(t, len(got), 130)
}

func TestGlobAndList(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(cwd, "src", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "src", "main.go"), []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "src", "deep", "util.go"), []byte("package deep"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "README.md"), []byte("# x"), 0o644))

	got, err := GlobTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]string{"pattern": "**/*.go"}))
	require.NoError(t, err)
	assert.Equal(t, "src/deep/util.go\nsrc/main.go", got)

	got, err = ListTool{}.Execute(context.Background(), testCtx(cwd), args(t, map[string]interface{}{}))
	require.NoError(t, err)
	assert.Contains(t, got, "README.md")
	assert.Contains(t, got, "src/")
}

func TestGrepFindsMatches(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "a.go"), []byte("func Alpha() {}\nfunc Beta() {}\n"), 0o644))

	got, err := GrepTool{}.Execute(context.Background(), testCtx(cwd),
		args(t, map[string]string{"pattern": "func A\\w+"}))
	require.NoError(t, err)
	assert.Contains(t, got, "a.go:1")
	assert.NotContains(t, got, "Beta")
}

func TestSkillToolReadsProjectFile(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "SKILL.md"), []byte("# Skill\nuse the tools"), 0o644))

	got, err := SkillTool{}.Execute(context.Background(), testCtx(cwd), args(t, map[string]string{}))
	require.NoError(t, err)
	assert.Contains(t, got, "use the tools")
}

func TestTodoRoundTrip(t *testing.T) {
	store := NewTodoStore(t.TempDir())
	pad := &Scratchpad{}
	tc := testCtx(t.TempDir())

	_, err := (TodoWriteTool{Store: store, Scratchpad: pad}).Execute(context.Background(), tc,
		args(t, map[string]interface{}{"items": []map[string]string{
			{"id": "1", "text": "write tests", "status": "in_progress"},
		}}))
	require.NoError(t, err)
	assert.Contains(t, pad.Content(), "write tests")

	got, err := (TodoReadTool{Store: store}).Execute(context.Background(), tc, nil)
	require.NoError(t, err)
	assert.Contains(t, got, "write tests")
	assert.Contains(t, got, "in_progress")
}

func TestQuestionToolChoices(t *testing.T) {
	tc := Context{Cwd: t.TempDir(), SessionID: "s", Stdin: strings.NewReader("2\n"), Stdout: &strings.Builder{}}
	got, err := QuestionTool{}.Execute(context.Background(), tc,
		args(t, map[string]interface{}{"prompt": "pick one", "choices": []string{"red", "green"}}))
	require.NoError(t, err)
	assert.Contains(t, got, "green")
}

func TestRegistryLookupAndSpecs(t *testing.T) {
	r := NewRegistry()
	r.Register(ListTool{})
	r.Register(ReadTool{})

	_, ok := r.Get("teleport")
	assert.False(t, ok)
	tool, ok := r.Get("read")
	require.True(t, ok)
	assert.Equal(t, "read", tool.Spec().Name)

	specs := r.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "list", specs[0].Name)

	pts := r.ProviderTools()
	require.Len(t, pts, 2)
	assert.NotEmpty(t, pts[1].Parameters)
}
